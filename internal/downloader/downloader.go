// file: internal/downloader/downloader.go
package downloader

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Downloader 是所有源文件读取器都必须实现的接口。
type Downloader interface {
	// SupportsScheme 支持的协议 (e.g., "http", "https", "file")
	SupportsScheme(scheme string) bool
	// Download 打开源位置，返回一个可读取文件内容的对象
	Download(sourceURL *url.URL) (io.ReadCloser, error)
}

// HTTPDownloader =============================================================================
//
//	HTTP/HTTPS 源文件读取器
//
// =============================================================================
type HTTPDownloader struct {
	Client *http.Client
}

func (d *HTTPDownloader) SupportsScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

func (d *HTTPDownloader) Download(sourceURL *url.URL) (io.ReadCloser, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(sourceURL.String())
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() // 确保在出错时关闭body
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP请求失败: 状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, nil
}

// FileDownloader =============================================================================
//
//	本地文件读取器
//
// =============================================================================
type FileDownloader struct{}

func (d *FileDownloader) SupportsScheme(scheme string) bool {
	return scheme == "file" || scheme == ""
}

func (d *FileDownloader) Download(sourceURL *url.URL) (io.ReadCloser, error) {
	return os.Open(resolveLocalFilePath(sourceURL))
}

// resolveLocalFilePath 把 file URL 转成本地路径。
// 例如 "file:///C:/Users/..." -> Path: "/C:/Users/..."，在 Windows 上需要去掉这个前导斜杠
func resolveLocalFilePath(u *url.URL) string {
	path := filepath.FromSlash(u.Path)
	if len(path) > 2 && path[0] == filepath.Separator && path[2] == ':' {
		path = path[1:]
	}
	return path
}

// Registry 按位置的协议选择读取器。不带协议的位置一律当作本地路径。
type Registry struct {
	downloaders []Downloader
}

// NewRegistry 返回支持本地文件和 HTTP(S) 的默认注册表
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		downloaders: []Downloader{
			&FileDownloader{},
			&HTTPDownloader{Client: &http.Client{Timeout: timeout}},
		},
	}
}

// Open 打开一个源位置
func (r *Registry) Open(location string) (io.ReadCloser, error) {
	if !hasScheme(location) {
		// 普通路径 (包括 "C:\data\x.csv") 不走 url.Parse，避免空格、百分号等被误解析
		return os.Open(location)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("无法解析源位置 '%s': %w", location, err)
	}
	for _, d := range r.downloaders {
		if d.SupportsScheme(u.Scheme) {
			return d.Download(u)
		}
	}
	return nil, fmt.Errorf("不支持的协议: '%s'", u.Scheme)
}

// hasScheme 判断 location 是否以 "<scheme>://" 开头；单字母协议视为 Windows 盘符。
func hasScheme(location string) bool {
	i := strings.Index(location, "://")
	if i <= 1 {
		return false
	}
	for _, c := range location[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
