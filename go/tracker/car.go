package tracker

import (
	"time"

	"github.com/twmsh/fy-admin/go/queue"
)

// CarConfig gates when a vehicle track is considered complete.
type CarConfig struct {
	// Count is the minimum number of vehicle captures.
	Count int
	// Conf is the floor for the top candidate of every plate bit.
	Conf float64

	ReadyDelay time.Duration
	CleanDelay time.Duration
}

func plateConfOK(it *CarItem, conf float64) bool {
	if it.Notify.PlateInfo == nil || it.Notify.PlateInfo.Bits == nil {
		return false
	}
	for _, bit := range it.Notify.PlateInfo.Bits {
		if len(bit) > 0 && bit[0].Conf < conf {
			return false
		}
	}
	return true
}

// NewCarAggregator coalesces vehicle notify bursts. A track is ready once
// the plate read clears the confidence floor and enough vehicle captures
// have accumulated.
func NewCarAggregator(cfg CarConfig, in *queue.Queue[*CarItem], out func(*CarItem)) *Aggregator[*CarItem] {
	return newAggregator(
		Config{
			Name:       "vehicletrack",
			ReadyDelay: cfg.ReadyDelay,
			CleanDelay: cfg.CleanDelay,
		},
		in, out,
		func(it *CarItem) string { return it.UUID },
		func(it *CarItem) bool {
			return plateConfOK(it, cfg.Conf) && len(it.Notify.Vehicles) >= cfg.Count
		},
		func(dst, src *CarItem) {
			// Background replaced, captures accumulate, plate and props
			// replaced when the burst carries them.
			dst.Notify.Background = src.Notify.Background
			dst.Notify.Vehicles = append(dst.Notify.Vehicles, src.Notify.Vehicles...)
			if src.Notify.PlateInfo != nil {
				dst.Notify.PlateInfo = src.Notify.PlateInfo
			}
			if src.Notify.Props != nil {
				dst.Notify.Props = src.Notify.Props
			}
		},
		nil,
	)
}
