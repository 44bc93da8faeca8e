package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/join"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
	"github.com/wbrown/janus-rowflow/rowflow/source/parquetsrc"
	"github.com/wbrown/janus-rowflow/rowflow/source/sqlsrc"
	"github.com/wbrown/janus-rowflow/rowflow/storage"
)

// sideFlags locate one join input. Exactly one of table, parquet and sql
// is set.
type sideFlags struct {
	table   string
	parquet string
	sql     string
	alias   string
}

type joinFlags struct {
	db      string
	sqlite  string
	left    sideFlags
	right   sideFlags
	kind    string
	on      string
	where   string
	order   []string
	limit   int
	nearest string
}

var jf joinFlags

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join two stored tables, sqlite tables or parquet files",
	Example: `  rowflow join --db ./data --left left --right right --on "l.k = r.k"
  rowflow join --db ./data --left left --right-parquet trades.parquet --right-alias t --kind nearest --on "l.k = t.px"
  rowflow join --sqlite app.db --left-sql orders --right-sql prices --kind left --on "l.sku = r.sku"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := runJoin(cmd.Context(), s.ec, jf, out); err != nil {
			s.closer.Close()
			return err
		}
		return s.finish(out)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&jf.db, "db", "", "badger database directory for --left/--right tables")
	f.StringVar(&jf.sqlite, "sqlite", "", "sqlite database file for --left-sql/--right-sql tables")
	f.StringVar(&jf.left.table, "left", "", "left stored table")
	f.StringVar(&jf.left.parquet, "left-parquet", "", "left parquet file")
	f.StringVar(&jf.left.sql, "left-sql", "", "left sqlite table")
	f.StringVar(&jf.left.alias, "left-alias", "l", "left alias")
	f.StringVar(&jf.right.table, "right", "", "right stored table")
	f.StringVar(&jf.right.parquet, "right-parquet", "", "right parquet file")
	f.StringVar(&jf.right.sql, "right-sql", "", "right sqlite table")
	f.StringVar(&jf.right.alias, "right-alias", "r", "right alias")
	f.StringVar(&jf.kind, "kind", "inner", "join strategy: inner, left, cross, cross-apply, outer-apply, sequential, left-sequential, nearest")
	f.StringVar(&jf.on, "on", "", `join condition, e.g. "l.k = r.k"`)
	f.StringVar(&jf.where, "where", "", "filter over the joined rows")
	f.StringSliceVar(&jf.order, "order", nil, "order by fields; prefix with - for descending")
	f.IntVar(&jf.limit, "limit", 0, "maximum rows, 0 for all")
	f.StringVar(&jf.nearest, "nearest", "backward", "nearest matching rule: backward or absolute")
}

// inputs opens the databases the join reads and closes them afterwards
type inputs struct {
	db     *storage.DB
	sqlite *sql.DB
}

func (in *inputs) close() {
	if in.db != nil {
		in.db.Close()
	}
	if in.sqlite != nil {
		in.sqlite.Close()
	}
}

func (in *inputs) open(f joinFlags, side sideFlags) (source.Source, error) {
	switch {
	case side.parquet != "":
		return parquetsrc.Open(side.parquet, side.alias)
	case side.sql != "":
		if f.sqlite == "" {
			return nil, errors.New("--sqlite is required for sql tables")
		}
		if in.sqlite == nil {
			db, err := sql.Open("sqlite", f.sqlite)
			if err != nil {
				return nil, err
			}
			in.sqlite = db
		}
		return sqlsrc.New(in.sqlite, side.sql, side.alias)
	case side.table != "":
		if f.db == "" {
			return nil, errors.New("--db is required for stored tables")
		}
		if in.db == nil {
			db, err := storage.Open(f.db)
			if err != nil {
				return nil, err
			}
			in.db = db
		}
		t, err := in.db.Table(side.table)
		if err != nil {
			return nil, err
		}
		return t.Source(side.alias), nil
	}
	return nil, fmt.Errorf("no input for alias %q", side.alias)
}

// descriptor builds the outer query from --where, --order and --limit
func descriptor(f joinFlags) (query.PushdownQuery, error) {
	q := query.New()
	if f.where != "" {
		p, err := query.Parse(f.where)
		if err != nil {
			return q, fmt.Errorf("--where: %w", err)
		}
		q = q.WithFilter(p)
	}
	var order []query.OrderBy
	for _, o := range f.order {
		if name, ok := strings.CutPrefix(o, "-"); ok {
			order = append(order, query.Desc(name))
		} else {
			order = append(order, query.Asc(o))
		}
	}
	if len(order) > 0 {
		q = q.WithOrder(order...)
	}
	if f.limit > 0 {
		q = q.WithLimit(f.limit)
	}
	return q, nil
}

func runJoin(ctx context.Context, ec *executor.Context, f joinFlags, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	kind, err := join.ParseKind(f.kind)
	if err != nil {
		return err
	}
	spec := join.Spec{Kind: kind}
	if f.on != "" {
		if spec.On, err = query.Parse(f.on); err != nil {
			return fmt.Errorf("--on: %w", err)
		}
	}
	switch f.nearest {
	case "backward":
	case "absolute":
		spec.Nearest = join.NearestAbsolute
	default:
		return fmt.Errorf("--nearest: unknown rule %q", f.nearest)
	}
	q, err := descriptor(f)
	if err != nil {
		return err
	}

	var in inputs
	defer in.close()
	if spec.Left, err = in.open(f, f.left); err != nil {
		return fmt.Errorf("left: %w", err)
	}
	if spec.Right, err = in.open(f, f.right); err != nil {
		return fmt.Errorf("right: %w", err)
	}
	node, err := join.New(spec)
	if err != nil {
		return err
	}

	start := time.Now()
	table, err := executor.NewTableFormatter().FormatRows(ctx, node.Rows(ec, q))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "%s in %s, %d rows scanned\n",
		color.GreenString("%s", node), time.Since(start).Round(time.Microsecond), ec.Scanned())
	return nil
}
