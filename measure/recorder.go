package measure

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	tableSiteUpdate         = "site_update"
	tableDynamicCorrelation = "dynamic_correlation"
)

// A Recorder persists sweep statistics and measurements in a SQLite
// database. Opening a path drops any tables from a previous run.
type Recorder struct {
	Path string

	db *sql.DB
}

// NewRecorder opens the database at dbPath.
func NewRecorder(dbPath string) (*Recorder, error) {
	r := &Recorder{Path: dbPath}
	var err error
	r.db, err = newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return r, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// AddSiteUpdate records the outcome of one two site update.
func (r *Recorder) AddSiteUpdate(sweep, site int, energy, truncErr float64, d, iters int, entropy float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (sweep, site, energy, trunc_err, d, iters, entropy) VALUES (?, ?, ?, ?, ?, ?, ?)`, tableSiteUpdate)
	if _, err := r.db.ExecContext(ctx, sqlStr, sweep, site, energy, truncErr, d, iters, entropy); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	return nil
}

// AddDynamicCorrelation records one dynamic correlation measurement.
func (r *Recorder) AddDynamicCorrelation(c DynamicCorrelation) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (site0, site1, t0, t1, avg_re, avg_im) VALUES (?, ?, ?, ?, ?, ?)`, tableDynamicCorrelation)
	args := []any{c.Sites[0], c.Sites[1], c.Times[0], c.Times[1], real(c.Avg), imag(c.Avg)}
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return nil
}

// DynamicCorrelations returns all recorded dynamic correlations ordered by
// time and site.
func (r *Recorder) DynamicCorrelations() ([]DynamicCorrelation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT site0, site1, t0, t1, avg_re, avg_im FROM %s ORDER BY t1, site1`, tableDynamicCorrelation)
	rows, err := r.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	cs := make([]DynamicCorrelation, 0)
	for rows.Next() {
		var c DynamicCorrelation
		var re, im float64
		if err := rows.Scan(&c.Sites[0], &c.Sites[1], &c.Times[0], &c.Times[1], &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		c.Avg = complex(re, im)
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return cs, nil
}

// WriteCSV exports both tables as CSV files under dir.
func (r *Recorder) WriteCSV(dir string) error {
	updateCols := []string{"sweep", "site", "energy", "trunc_err", "d", "iters", "entropy"}
	if err := r.writeTable(dir, tableSiteUpdate, updateCols, "sweep, site"); err != nil {
		return errors.Wrap(err, "")
	}
	corrCols := []string{"site0", "site1", "t0", "t1", "avg_re", "avg_im"}
	if err := r.writeTable(dir, tableDynamicCorrelation, corrCols, "t1, site1"); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (r *Recorder) writeTable(dir, table string, cols []string, order string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 48*time.Hour)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s`, table, order)
	rows, err := r.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	f, err := os.Create(filepath.Join(dir, table+".csv"))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	if err1 := w.Write(cols); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	vals := make([]any, len(cols))
	for i := range vals {
		vals[i] = new(float64)
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err1 := rows.Scan(vals...); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
		for i, v := range vals {
			record[i] = strconv.FormatFloat(*v.(*float64), 'g', -1, 64)
		}
		if err1 := w.Write(record); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	if err1 := rows.Err(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableSiteUpdate),
		fmt.Sprintf(`CREATE TABLE %s (sweep INTEGER, site INTEGER, energy REAL, trunc_err REAL, d INTEGER, iters INTEGER, entropy REAL) STRICT`, tableSiteUpdate),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableDynamicCorrelation),
		fmt.Sprintf(`CREATE TABLE %s (site0 INTEGER, site1 INTEGER, t0 REAL, t1 REAL, avg_re REAL, avg_im REAL) STRICT`, tableDynamicCorrelation),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}
