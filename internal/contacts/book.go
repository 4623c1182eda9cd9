// Package contacts resolves spoken recipient names to on-chain addresses.
package contacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver 定义联系人解析的通用接口。
type Resolver interface {
	Resolve(name, chain string) (Contact, bool)
	All() []Contact
}

// Contact 描述通讯录中的一个收款人。
type Contact struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Chain   string   `json:"chain"`
	Aliases []string `json:"aliases"`
}

// Book 是从 JSON 文件加载的静态通讯录。
type Book struct {
	entries []Contact
	index   map[string][]int
}

// NewBook 创建通讯录实例，名称与别名均按小写匹配。
func NewBook(entries []Contact) *Book {
	b := &Book{entries: entries, index: make(map[string][]int)}
	for i, entry := range entries {
		for _, key := range append([]string{entry.Name}, entry.Aliases...) {
			normalized := normalize(key)
			if normalized == "" {
				continue
			}
			b.index[normalized] = append(b.index[normalized], i)
		}
	}
	return b
}

// LoadBook 从 JSON 文件加载通讯录条目。
func LoadBook(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("通讯录文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析通讯录路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取通讯录文件失败: %w", err)
	}
	defer file.Close()

	var entries []Contact
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析通讯录文件失败: %w", err)
	}
	for i, entry := range entries {
		if strings.TrimSpace(entry.Name) == "" || strings.TrimSpace(entry.Address) == "" {
			return nil, fmt.Errorf("通讯录第 %d 条缺少 name 或 address", i+1)
		}
	}

	return NewBook(entries), nil
}

// Resolve 按名称或别名查找联系人。同名联系人存在多条时优先返回与 chain 匹配的一条。
func (b *Book) Resolve(name, chain string) (Contact, bool) {
	if b == nil {
		return Contact{}, false
	}
	candidates := b.index[normalize(name)]
	if len(candidates) == 0 {
		return Contact{}, false
	}
	for _, idx := range candidates {
		if chain != "" && strings.EqualFold(b.entries[idx].Chain, chain) {
			return b.entries[idx], true
		}
	}
	return b.entries[candidates[0]], true
}

// All 返回按名称排序的全部联系人。
func (b *Book) All() []Contact {
	if b == nil {
		return nil
	}
	out := make([]Contact, len(b.entries))
	copy(out, b.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "@")
	return strings.Join(strings.Fields(name), " ")
}

// Ensure Book 实现 Resolver 接口。
var _ Resolver = (*Book)(nil)
