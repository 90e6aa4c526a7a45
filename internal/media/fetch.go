// Package media 负责读取文件记录对应的字节并进行格式转换
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"OneBotCAI/internal/store"
)

// Fetcher 按文件记录的来源读取内容
type Fetcher struct {
	client  *http.Client
	maxSize int64 // 单个文件大小上限（字节），0 表示不限制
}

// NewFetcher 创建读取器
// 参数:
//   - timeout: 下载超时
//   - maxSize: 文件大小上限，不大于 0 时不限制
func NewFetcher(timeout time.Duration, maxSize int64) *Fetcher {
	if maxSize < 0 {
		maxSize = 0
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, maxSize: maxSize}
}

// Fetch 读取文件内容
// 参数:
//   - ctx: 上下文
//   - f: 文件记录
//
// 返回:
//   - []byte: 文件内容
//   - error: 下载或读取失败
func (f *Fetcher) Fetch(ctx context.Context, file *store.File) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch file.Type {
	case store.FileData:
		data = file.Data
	case store.FilePath:
		data, err = f.readFile(file.Path)
	case store.FileURL:
		data, err = f.download(ctx, file.URL, file.Headers)
	default:
		err = fmt.Errorf("未知的文件类型: %s", file.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s: %w", file.Name, err)
	}
	slog.Debug("读取文件", "name", file.Name, "type", file.Type, "size", humanize.Bytes(uint64(len(data))))
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP状态码: %d", resp.StatusCode)
	}

	return f.readAll(resp.Body)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	if info, err := fd.Stat(); err == nil && f.maxSize > 0 && info.Size() > f.maxSize {
		return nil, f.tooLarge()
	}
	return f.readAll(fd)
}

// readAll 读取全部内容，超过上限时返回错误
func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	if f.maxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxSize {
		return nil, f.tooLarge()
	}
	return data, nil
}

func (f *Fetcher) tooLarge() error {
	return fmt.Errorf("文件超过大小上限 %s", humanize.Bytes(uint64(f.maxSize)))
}
