package models

import (
	"context"
	"fmt"
	"time"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

func init() {
	Register("ZeroFlow", func(args map[string]any) (Model, error) {
		box, err := CropBoxFromArg(args)
		if err != nil {
			return nil, err
		}
		return &ZeroFlow{box: box}, nil
	})
}

// ZeroFlow predicts zero motion for every point. It is the ego-motion-
// compensated baseline: its endpoint error equals the ground-truth flow
// magnitude, which makes it the reference point every learned model has to
// beat on the mover split.
type ZeroFlow struct {
	box CropBox
}

// Name implements Model.
func (z *ZeroFlow) Name() string { return "ZeroFlow" }

// Forward implements Model.
func (z *ZeroFlow) Forward(_ context.Context, batch *flow.Batch) (*Output, error) {
	start := time.Now()
	out := &Output{
		Flow:            make([][]flow.Vec3, len(batch.Samples)),
		PC0ValidIndexes: make([][]int, len(batch.Samples)),
		PC1ValidIndexes: make([][]int, len(batch.Samples)),
	}
	for i, sample := range batch.Samples {
		if len(sample.Points) < 2 {
			return nil, fmt.Errorf("sample %d has %d frames, need at least 2", i, len(sample.Points))
		}
		pc0 := sample.Points[len(sample.Points)-2]
		pc1 := sample.Points[len(sample.Points)-1]
		valid0 := z.box.ValidIndexes(pc0)
		out.PC0ValidIndexes[i] = valid0
		out.PC1ValidIndexes[i] = z.box.ValidIndexes(pc1)
		out.Flow[i] = make([]flow.Vec3, len(valid0))
	}
	out.Elapsed = time.Since(start)
	return out, nil
}
