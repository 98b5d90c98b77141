package domain

import (
	"strings"
	"time"

	"github.com/John-Robertt/photosort/internal/capfs"
)

// Kind 是照片文件的分类，只由扩展名决定（大小写不敏感）。
type Kind string

const (
	KindJPEG Kind = "jpeg"
	KindDNG  Kind = "dng"
)

// KindFromName 根据文件名的扩展名给出分类；不识别的扩展名返回 ok=false。
//
// 规则：jpg/jpeg -> JPEG，dng -> DNG。
func KindFromName(name string) (Kind, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", false
	}
	switch strings.ToLower(name[i+1:]) {
	case "jpg", "jpeg":
		return KindJPEG, true
	case "dng":
		return KindDNG, true
	default:
		return "", false
	}
}

// PhotoFile 描述一次扫描得到的照片文件。
//
// 不变量：
// - ID 在扫描时生成，跨扫描不稳定
// - Size/ModTime 是扫描时的快照，不随文件变化更新
// - Handle 归扫描所用的目录能力所有；批量操作只借用，不保存
type PhotoFile struct {
	ID      string
	Name    string
	Path    string // 单目录范围内的逻辑路径（与 Name 相同）
	Kind    Kind
	Size    int64
	ModTime time.Time

	Handle *capfs.File
}

// Basename 返回去掉最后一个扩展名后的文件名（最后一个 '.' 之前的部分）。
// 没有 '.' 的文件名整体作为 basename。
func Basename(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name
	}
	return name[:i]
}

// Pair 是按 basename 聚合的一组照片：每种分类最多一个成员。
type Pair struct {
	ID       string
	Basename string

	JPEG *PhotoFile
	DNG  *PhotoFile
}

func (p Pair) HasJPEG() bool { return p.JPEG != nil }
func (p Pair) HasDNG() bool  { return p.DNG != nil }

// Empty 表示两个成员都不存在（只会出现在移动/删除之后的列表修补阶段）。
func (p Pair) Empty() bool { return p.JPEG == nil && p.DNG == nil }

// Members 按固定顺序（JPEG 在前，DNG 在后）返回存在的成员。
func (p Pair) Members() []*PhotoFile {
	out := make([]*PhotoFile, 0, 2)
	if p.JPEG != nil {
		out = append(out, p.JPEG)
	}
	if p.DNG != nil {
		out = append(out, p.DNG)
	}
	return out
}

// Preview 返回用于缩略图的成员：优先 JPEG。
func (p Pair) Preview() *PhotoFile {
	if p.JPEG != nil {
		return p.JPEG
	}
	return p.DNG
}

// Without 返回移除了指定成员（按 ID）后的副本。
func (p Pair) Without(ids ...string) Pair {
	for _, id := range ids {
		if p.JPEG != nil && p.JPEG.ID == id {
			p.JPEG = nil
		}
		if p.DNG != nil && p.DNG.ID == id {
			p.DNG = nil
		}
	}
	return p
}
