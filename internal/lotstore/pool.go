package lotstore

import (
	"context"
	"database/sql"
	"sync"
)

// connPool is a bounded pool of *sql.Conn, serialized by a mutex, mirroring
// the teacher's hand-rolled ConnectionPool rather than relying solely on
// database/sql's own pooling: acquire pops a pooled connection or opens a
// new one; release returns it to the pool under capacity, otherwise its
// cached statements are finalized and the connection is closed.
type connPool struct {
	mu      sync.Mutex
	db      *sql.DB
	conns   []*sql.Conn
	maxSize int
	stmts   *stmtCache
}

func newConnPool(db *sql.DB, maxSize int, stmts *stmtCache) *connPool {
	if maxSize <= 0 {
		maxSize = 5
	}
	return &connPool{db: db, maxSize: maxSize, stmts: stmts}
}

func (p *connPool) acquire(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	if n := len(p.conns); n > 0 {
		conn := p.conns[n-1]
		p.conns = p.conns[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	return p.db.Conn(ctx)
}

func (p *connPool) release(conn *sql.Conn) {
	if conn == nil {
		return
	}

	shouldClose := false
	p.mu.Lock()
	if len(p.conns) >= p.maxSize {
		shouldClose = true
	} else {
		p.conns = append(p.conns, conn)
	}
	p.mu.Unlock()

	if shouldClose {
		p.stmts.clearForConn(conn)
		conn.Close()
	}
}

// reset closes every pooled connection and clears their cached statements.
// Used when the Store is reset (e.g. between tests).
func (p *connPool) reset() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, conn := range conns {
		p.stmts.clearForConn(conn)
		conn.Close()
	}
}

func (p *connPool) setMaxSize(size int) {
	if size <= 0 {
		size = 1
	}

	var toClose []*sql.Conn
	p.mu.Lock()
	p.maxSize = size
	for len(p.conns) > p.maxSize {
		n := len(p.conns)
		toClose = append(toClose, p.conns[n-1])
		p.conns = p.conns[:n-1]
	}
	p.mu.Unlock()

	for _, conn := range toClose {
		p.stmts.clearForConn(conn)
		conn.Close()
	}
}
