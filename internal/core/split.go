package core

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ChunkDir returns the directory holding a table's chunk files.
func ChunkDir(root string, table Table) string {
	return filepath.Join(root, string(table))
}

// ChunkFiles lists a table's chunk files in order.
func ChunkFiles(root string, table Table) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(ChunkDir(root, table), string(table)+"_*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ChunkSize returns ceil(rows / parallelism), at least 1.
func ChunkSize(rows int64, parallelism int) int64 {
	if parallelism < 1 {
		parallelism = 1
	}
	size := (rows + int64(parallelism) - 1) / int64(parallelism)
	if size < 1 {
		size = 1
	}
	return size
}

// SplitFile partitions root/<table>.csv into contiguous chunk files of
// ChunkSize rows under root/<table>/, then removes the original file.
// Existing chunks from an earlier run are removed first. An empty table
// produces an empty directory.
func SplitFile(ctx context.Context, root string, table Table, parallelism int) ([]string, error) {
	src := filepath.Join(root, table.FileName())

	rows, err := countRecords(src)
	if err != nil {
		return nil, err
	}

	dir := ChunkDir(root, table)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	chunks, err := writeChunks(ctx, src, dir, table, ChunkSize(rows, parallelism))
	if err != nil {
		return nil, err
	}

	if err := os.Remove(src); err != nil {
		return nil, fmt.Errorf("remove %s: %w", src, err)
	}
	return chunks, nil
}

func countRecords(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, streamBufferSize))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", path, err)
		}
		n++
	}
}

type chunkWriter struct {
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
}

func createChunk(path string) (*chunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}
	buf := bufio.NewWriterSize(f, streamBufferSize)
	return &chunkWriter{file: f, buf: buf, csv: csv.NewWriter(buf)}, nil
}

func (c *chunkWriter) close() error {
	c.csv.Flush()
	if err := c.csv.Error(); err != nil {
		c.file.Close()
		return err
	}
	if err := c.buf.Flush(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

func writeChunks(ctx context.Context, src, dir string, table Table, size int64) (chunks []string, err error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, streamBufferSize))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var (
		cur *chunkWriter
		n   int64
	)
	defer func() {
		if cur != nil {
			if cerr := cur.close(); cerr != nil && err == nil {
				err = fmt.Errorf("close chunk: %w", cerr)
			}
		}
	}()

	for {
		rec, rerr := r.Read()
		if rerr == io.EOF {
			return chunks, nil
		}
		if rerr != nil {
			return nil, fmt.Errorf("read %s: %w", src, rerr)
		}

		if cur == nil || n == size {
			if cur != nil {
				if err := cur.close(); err != nil {
					cur = nil
					return nil, fmt.Errorf("close chunk: %w", err)
				}
				cur = nil
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%04d.csv", table, len(chunks)))
			cur, err = createChunk(path)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, path)
			n = 0
		}

		if err := cur.csv.Write(rec); err != nil {
			return nil, fmt.Errorf("write chunk: %w", err)
		}
		n++
	}
}

// SplitAll splits every table concurrently with at most parallelism files
// in flight. Returns the chunk files per table.
func SplitAll(ctx context.Context, root string, tables []Table, parallelism int) (map[Table][]string, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu  sync.Mutex
		out = make(map[Table][]string, len(tables))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, t := range tables {
		g.Go(func() error {
			chunks, err := SplitFile(ctx, root, t, parallelism)
			if err != nil {
				return fmt.Errorf("split %s: %w", t, err)
			}
			mu.Lock()
			out[t] = chunks
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
