package delivery

import (
	"context"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/vectormask"
)

// DescribeMask loads the vector mask the run would use.
func DescribeMask(cfg properties.Config) (*vectormask.ROI, error) {
	roi, err := vectormask.Load(cfg.VectorMaskDir, cfg.TargetCRS)
	if err != nil {
		return nil, stageError(StepVectorMask, err)
	}
	return roi, nil
}

// ListScenes returns the candidate scenes over the mask, most recent first.
// The first one is the scene ComputeLST would select.
func ListScenes(ctx context.Context, cfg properties.Config, svc imagery.Service) ([]imagery.Scene, error) {
	roi, err := DescribeMask(cfg)
	if err != nil {
		return nil, err
	}
	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, stageError(StepConfiguration, err)
	}
	scenes, err := svc.FilterCollection(ctx, imagery.CollectionQuery{
		Collection:    cfg.Collection,
		Region:        roi.BoundLonLat(),
		Start:         start,
		End:           end,
		MaxCloudCover: cfg.CloudCoverThreshold,
	})
	if err != nil {
		return nil, stageError(StepAcquisition, err)
	}
	candidates := landsat.FilterCandidates(scenes, start, end, cfg.CloudCoverThreshold)
	if len(candidates) == 0 {
		return nil, stageError(StepAcquisition, landsat.ErrEmptyCollection)
	}
	return landsat.SortByRecency(candidates), nil
}
