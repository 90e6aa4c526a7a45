package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite 驱动
)

// op 写事务中执行的操作，done 接收执行结果
type op struct {
	fn   func(*sql.Tx) error
	done chan error
}

// sqliteKV 基于 SQLite 的存储引擎
// 所有写入经由单一写协程批量提交，读取直接走连接池
type sqliteKV struct {
	db   *sql.DB
	ops  chan op        // 写入队列
	stop chan struct{}  // 停止信号
	wg   sync.WaitGroup // 等待写入协程退出
}

func openSQLite(dir string) (*sqliteKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	// WAL: 预写式日志模式，读写互不阻塞
	dsn := fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_sync=NORMAL", filepath.Join(dir, "onebot.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (k BLOB PRIMARY KEY, v BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, err
	}

	s := &sqliteKV{
		db:   db,
		ops:  make(chan op, 256),
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// writer 批量写入协程
// 攒够 100 条或每 20ms 提交一次，提交后逐条通知调用方
func (s *sqliteKV) writer() {
	defer s.wg.Done()

	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()

	batch := make([]op, 0, 100)

	exec := func() {
		if len(batch) == 0 {
			return
		}
		errs := make([]error, len(batch))
		tx, err := s.db.Begin()
		if err == nil {
			for i, o := range batch {
				errs[i] = o.fn(tx)
			}
			err = tx.Commit()
		}
		for i, o := range batch {
			if err != nil {
				errs[i] = err
			}
			o.done <- errs[i]
		}
		batch = batch[:0]
	}

	for {
		select {
		case o := <-s.ops:
			batch = append(batch, o)
			if len(batch) >= 100 {
				exec()
			}
		case <-t.C:
			exec()
		case <-s.stop:
			// 提交剩余操作后退出
			for {
				select {
				case o := <-s.ops:
					batch = append(batch, o)
				default:
					exec()
					return
				}
			}
		}
	}
}

// push 将写操作放入队列并等待提交结果
func (s *sqliteKV) push(fn func(*sql.Tx) error) error {
	o := op{fn: fn, done: make(chan error, 1)}
	select {
	case s.ops <- o:
	case <-s.stop:
		return ErrClosed
	}
	return <-o.done
}

func (s *sqliteKV) Get(key []byte) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow("SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *sqliteKV) Set(key, value []byte) error {
	return s.push(func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT OR REPLACE INTO kv (k, v) VALUES (?, ?)", key, value)
		return err
	})
}

func (s *sqliteKV) Delete(keys [][]byte) error {
	return s.push(func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.Exec("DELETE FROM kv WHERE k = ?", k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteKV) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	var (
		rows *sql.Rows
		err  error
	)
	if len(prefix) == 0 {
		rows, err = s.db.Query("SELECT k, v FROM kv ORDER BY k")
	} else {
		rows, err = s.db.Query("SELECT k, v FROM kv WHERE k >= ? ORDER BY k", prefix)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !fn(k, v) {
			break
		}
	}
	return rows.Err()
}

func (s *sqliteKV) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}
