package models

import (
	"fmt"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// CropBox is the axis-aligned point-cloud range a model operates inside.
// Points outside the box are excluded from the valid-point indexes, which is
// how far-field returns are kept out of both prediction and scoring.
type CropBox struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// DefaultCropBox matches the pseudo-image range used by the driving
// datasets: +/-51.2 m horizontally, -3..3 m vertically.
func DefaultCropBox() CropBox {
	return CropBox{MinX: -51.2, MinY: -51.2, MinZ: -3, MaxX: 51.2, MaxY: 51.2, MaxZ: 3}
}

// CropBoxFromArg parses the "point_cloud_range" config arg, a 6-element
// [minx, miny, minz, maxx, maxy, maxz] array. A missing arg yields the
// default box.
func CropBoxFromArg(args map[string]any) (CropBox, error) {
	raw, ok := args["point_cloud_range"]
	if !ok {
		return DefaultCropBox(), nil
	}
	vals, ok := raw.([]any)
	if !ok || len(vals) != 6 {
		return CropBox{}, fmt.Errorf("point_cloud_range must be a 6-element array, got %v", raw)
	}
	nums := make([]float64, 6)
	for i, v := range vals {
		f, ok := v.(float64)
		if !ok {
			return CropBox{}, fmt.Errorf("point_cloud_range[%d] = %v is not a number", i, v)
		}
		nums[i] = f
	}
	box := CropBox{
		MinX: nums[0], MinY: nums[1], MinZ: nums[2],
		MaxX: nums[3], MaxY: nums[4], MaxZ: nums[5],
	}
	if box.MaxX <= box.MinX || box.MaxY <= box.MinY || box.MaxZ <= box.MinZ {
		return CropBox{}, fmt.Errorf("point_cloud_range has empty extent: %+v", box)
	}
	return box, nil
}

// Contains reports whether p is inside the box.
func (b CropBox) Contains(p flow.Vec3) bool {
	return p.X >= b.MinX && p.X <= b.MaxX &&
		p.Y >= b.MinY && p.Y <= b.MaxY &&
		p.Z >= b.MinZ && p.Z <= b.MaxZ
}

// ValidIndexes returns the indexes of the points inside the box, in order.
func (b CropBox) ValidIndexes(pc flow.PointCloud) []int {
	idxs := make([]int, 0, len(pc))
	for i, p := range pc {
		if b.Contains(p) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}
