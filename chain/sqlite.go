package chain

import (
	"database/sql"
	"fmt"

	"github.com/Tibbersx/emcee3"
)

const (
	// TblChain is the name of the sql table holding one row per
	// (iteration, walker) pair with that walker's coordinates and
	// log-probabilities.
	TblChain = "chainwalk"
	// TblInfo is the name of the sql table holding the chain dimensions.
	TblInfo = "chaininfo"
)

// SQLite is a durable append-only chain stored through database/sql.  Each
// record is (iteration, walker, log-prior, log-likelihood, coordinates).
// Opening a database that already holds a chain resumes appending after the
// last committed iteration.
type SQLite struct {
	db       *sql.DB
	nwalkers int
	ndim     int
	niter    int
}

// NewSQLite wraps db as a chain backend.  The caller owns db and is
// responsible for closing it.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	c := &SQLite{db: db}

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", TblInfo).Scan(&name)
	if err == sql.ErrNoRows {
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("chain: probing for existing chain: %w", err)
	}

	err = db.QueryRow("SELECT nwalkers, ndim FROM " + TblInfo).Scan(&c.nwalkers, &c.ndim)
	if err != nil {
		return nil, fmt.Errorf("chain: reading chain dimensions: %w", err)
	}
	err = db.QueryRow("SELECT COALESCE(MAX(iter)+1, 0) FROM " + TblChain).Scan(&c.niter)
	if err != nil {
		return nil, fmt.Errorf("chain: reading chain length: %w", err)
	}
	return c, nil
}

func (c *SQLite) xdbsql(op string) string {
	s := ""
	for i := 0; i < c.ndim; i++ {
		switch op {
		case "?":
			s += ",?"
		case "define":
			s += fmt.Sprintf(",x%v REAL", i)
		case "x":
			s += fmt.Sprintf(",x%v", i)
		default:
			panic("invalid db op " + op)
		}
	}
	return s
}

func (c *SQLite) initdb() error {
	s := "CREATE TABLE IF NOT EXISTS " + TblChain + " (iter INTEGER,walker INTEGER,lnprior REAL,lnlike REAL"
	s += c.xdbsql("define")
	s += ");"
	if _, err := c.db.Exec(s); err != nil {
		return err
	}

	s = "CREATE TABLE IF NOT EXISTS " + TblInfo + " (nwalkers INTEGER,ndim INTEGER);"
	if _, err := c.db.Exec(s); err != nil {
		return err
	}
	_, err := c.db.Exec("INSERT INTO "+TblInfo+" (nwalkers,ndim) VALUES (?,?);", c.nwalkers, c.ndim)
	return err
}

// Append commits the full current state of e as one iteration.  All K rows
// go in a single transaction so readers never observe a partial iteration.
func (c *SQLite) Append(e *emcee3.Ensemble) error {
	if c.nwalkers == 0 {
		c.nwalkers, c.ndim = e.Len(), e.Dim()
		if err := c.initdb(); err != nil {
			return fmt.Errorf("chain: creating tables: %w", err)
		}
	}
	if c.nwalkers != e.Len() || c.ndim != e.Dim() {
		return fmt.Errorf("chain: ensemble is %vx%v, chain is %vx%v", e.Len(), e.Dim(), c.nwalkers, c.ndim)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("chain: begin append: %w", err)
	}

	s := "INSERT INTO " + TblChain + " (iter,walker,lnprior,lnlike" + c.xdbsql("x") + ") VALUES (?,?,?,?" + c.xdbsql("?") + ");"
	for w := 0; w < e.Len(); w++ {
		walker := e.Walker(w)
		args := []interface{}{c.niter, w, walker.LnPrior, walker.LnLike}
		for i := 0; i < c.ndim; i++ {
			args = append(args, walker.At(i))
		}
		if _, err := tx.Exec(s, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("chain: append iter %v walker %v: %w", c.niter, w, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chain: commit iter %v: %w", c.niter, err)
	}
	c.niter++
	return nil
}

// Len returns the number of committed iterations.
func (c *SQLite) Len() int { return c.niter }

func (c *SQLite) load() (coords [][][]float64, lnprobs [][]float64, err error) {
	if c.niter == 0 {
		return nil, nil, nil
	}

	s := "SELECT iter,walker,lnprior,lnlike" + c.xdbsql("x") + " FROM " + TblChain + " ORDER BY iter,walker;"
	rows, err := c.db.Query(s)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: reading chain: %w", err)
	}
	defer rows.Close()

	coords = make([][][]float64, c.niter)
	lnprobs = make([][]float64, c.niter)
	for i := range coords {
		coords[i] = make([][]float64, c.nwalkers)
		lnprobs[i] = make([]float64, c.nwalkers)
	}

	for rows.Next() {
		var iter, walker int
		var lnprior, lnlike float64
		pos := make([]float64, c.ndim)

		dest := []interface{}{&iter, &walker, &lnprior, &lnlike}
		for i := range pos {
			dest = append(dest, &pos[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("chain: scanning chain row: %w", err)
		}
		coords[iter][walker] = pos
		lnprobs[iter][walker] = lnprior + lnlike
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("chain: reading chain: %w", err)
	}
	return coords, lnprobs, nil
}

// Coords reconstructs the [iteration][walker][dim] coordinate tensor from
// the record stream, dropping the first discard iterations and keeping every
// thin'th of the rest.
func (c *SQLite) Coords(discard, thin int) ([][][]float64, error) {
	all, _, err := c.load()
	if err != nil {
		return nil, err
	}
	n := nsel(len(all), discard, thin)
	out := make([][][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = all[selIdx(i, discard, thin)]
	}
	return out, nil
}

// FlatCoords is Coords with the walker axis collapsed, iteration-major and
// walker-minor.
func (c *SQLite) FlatCoords(discard, thin int) ([][]float64, error) {
	iters, err := c.Coords(discard, thin)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(iters)*c.nwalkers)
	for _, iter := range iters {
		out = append(out, iter...)
	}
	return out, nil
}

// LnProbs returns the [iteration][walker] log-probability tensor under the
// same parameters as Coords.
func (c *SQLite) LnProbs(discard, thin int) ([][]float64, error) {
	_, all, err := c.load()
	if err != nil {
		return nil, err
	}
	n := nsel(len(all), discard, thin)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = all[selIdx(i, discard, thin)]
	}
	return out, nil
}
