package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/photosort/internal/capfs"
	"github.com/John-Robertt/photosort/internal/domain"
)

func TestReadTargetState_ExistingNames(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "IMG_001.jpg"))

	d, err := capfs.Grant(root)
	if err != nil {
		t.Fatalf("授权失败：%v", err)
	}
	st, err := ReadTargetState(context.Background(), d)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := st.ExistingNames["IMG_001.jpg"]; !ok {
		t.Fatalf("期望记录已存在文件：%+v", st)
	}
	if st.Path != d.Path() {
		t.Fatalf("path 不一致：%q", st.Path)
	}
}

func TestPlanMove_OrderAndOverwriteFlag(t *testing.T) {
	pair := domain.Pair{
		ID:       "p",
		Basename: "IMG_001",
		DNG:      &domain.PhotoFile{ID: "d", Name: "IMG_001.dng", Kind: domain.KindDNG},
		JPEG:     &domain.PhotoFile{ID: "j", Name: "IMG_001.jpg", Kind: domain.KindJPEG},
	}
	st := TargetState{
		Path:          filepath.Join(string(filepath.Separator), "dst"),
		ExistingNames: map[string]struct{}{"IMG_001.dng": {}},
	}

	p := PlanMove(pair, st)
	if len(p.Steps) != 2 || p.Steps[0].File.ID != "j" || p.Steps[1].File.ID != "d" {
		t.Fatalf("步骤顺序必须是 JPEG 在前：%+v", p.Steps)
	}
	if p.Steps[0].Overwrite || !p.Steps[1].Overwrite {
		t.Fatalf("覆盖标记不正确：%+v", p.Steps)
	}
	if p.Steps[0].DstPath != filepath.Join(st.Path, "IMG_001.jpg") {
		t.Fatalf("目标路径不正确：%q", p.Steps[0].DstPath)
	}

	r := Planned(p)
	if !r.OK() || len(r.Files) != 2 || r.Files[0].Status != domain.FileStatusPlanned {
		t.Fatalf("dry-run 结果不正确：%+v", r)
	}
}

func TestPlanDelete_SingleMember(t *testing.T) {
	pair := domain.Pair{ID: "p", Basename: "A", DNG: &domain.PhotoFile{ID: "d", Name: "A.dng", Kind: domain.KindDNG}}
	p := PlanDelete(pair)
	if p.Op != domain.OpDelete || len(p.Steps) != 1 || p.Steps[0].DstPath != "" {
		t.Fatalf("删除计划不正确：%+v", p)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
