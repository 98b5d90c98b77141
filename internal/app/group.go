package app

import (
	"github.com/google/uuid"

	"github.com/John-Robertt/photosort/internal/domain"
)

// GroupPairs 把照片文件按 basename 分组为 Pair（单次遍历，纯函数）。
//
// - basename 取最后一个 '.' 之前的部分（见 domain.Basename）
// - Pair 在第一次见到该 basename 时创建；输出顺序即首次出现顺序
// - 同一 basename 下同一分类出现多次时，后出现的覆盖先出现的
func GroupPairs(files []domain.PhotoFile) []domain.Pair {
	index := make(map[string]int, len(files))
	pairs := make([]domain.Pair, 0, len(files))

	for i := range files {
		f := &files[i]
		base := domain.Basename(f.Name)

		idx, ok := index[base]
		if !ok {
			idx = len(pairs)
			index[base] = idx
			pairs = append(pairs, domain.Pair{
				ID:       uuid.NewString(),
				Basename: base,
			})
		}

		switch f.Kind {
		case domain.KindJPEG:
			pairs[idx].JPEG = f
		case domain.KindDNG:
			pairs[idx].DNG = f
		}
	}
	return pairs
}

// FindPair 按 ID 查找 pair。
func FindPair(pairs []domain.Pair, id string) (domain.Pair, bool) {
	for _, p := range pairs {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Pair{}, false
}

// SelectPairs 按 basename 过滤；basenames 为空表示全选。结果保持 pairs 的原顺序。
// 返回值 missing 是未匹配到的 basename（保持输入顺序）。
func SelectPairs(pairs []domain.Pair, basenames []string) (selected []domain.Pair, missing []string) {
	if len(basenames) == 0 {
		return append([]domain.Pair(nil), pairs...), nil
	}
	want := make(map[string]bool, len(basenames))
	for _, b := range basenames {
		want[b] = false
	}
	for _, p := range pairs {
		if _, ok := want[p.Basename]; ok {
			want[p.Basename] = true
			selected = append(selected, p)
		}
	}
	seen := make(map[string]struct{}, len(basenames))
	for _, b := range basenames {
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		if !want[b] {
			missing = append(missing, b)
		}
	}
	return selected, missing
}
