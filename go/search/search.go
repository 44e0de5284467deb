// Package search annotates consolidated face tracks with recognizer hits
// before they leave the box.
package search

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/queue"
	"github.com/twmsh/fy-admin/go/tracker"
)

// batchMax bounds one search call; larger bursts are split.
const batchMax = 4

const dbsCacheKey = "dbs"

// Config tunes one search worker.
type Config struct {
	Top        int64
	Threshold  int64
	SkipSearch bool
	// CacheTTL is how long the engine db list is reused between refreshes.
	CacheTTL time.Duration
}

// Recognizer is the engine surface the worker needs.
type Recognizer interface {
	GetDbs() (*api.GetDbsRes, error)
	Search(db []string, top, threshold []int64, features [][]api.FeatureQuality) (*api.SearchRes, error)
}

// Service pops face tracks in small batches, searches the recognizer, and
// forwards every track whether or not the search succeeded.
type Service struct {
	num  int
	cfg  Config
	recg Recognizer

	in  *queue.Queue[*tracker.FaceItem]
	out func(tracker.Output)

	dbsCache *expirable.LRU[string, []string]
}

func New(num int, cfg Config, recg Recognizer, in *queue.Queue[*tracker.FaceItem], out func(tracker.Output)) *Service {
	return &Service{
		num:      num,
		cfg:      cfg,
		recg:     recg,
		in:       in,
		out:      out,
		dbsCache: expirable.NewLRU[string, []string](10, nil, cfg.CacheTTL),
	}
}

func (s *Service) Name() string { return "face-search" }

func (s *Service) Run(ctx context.Context) {
	for {
		var items = s.popBatch(ctx)
		if len(items) == 0 {
			return
		}
		s.processBatch(items)
	}
}

// popBatch blocks for the first item, then drains up to batchMax without
// waiting. Returns nil once ctx is done or the queue closes.
func (s *Service) popBatch(ctx context.Context) []*tracker.FaceItem {
	var first *tracker.FaceItem
	select {
	case <-ctx.Done():
		return nil
	case it, ok := <-s.in.C():
		if !ok {
			return nil
		}
		first = it
	}

	var items = []*tracker.FaceItem{first}
	for len(items) < batchMax {
		select {
		case it, ok := <-s.in.C():
			if !ok {
				return items
			}
			items = append(items, it)
		default:
			return items
		}
	}
	return items
}

func (s *Service) getDbs() []string {
	if dbs, ok := s.dbsCache.Get(dbsCacheKey); ok {
		return dbs
	}

	var dbs []string
	res, err := s.recg.GetDbs()
	switch {
	case err != nil:
		log.WithFields(log.Fields{"worker": s.num, "err": err}).Error("get_dbs failed")
	case res.Code != 0:
		log.WithFields(log.Fields{"worker": s.num, "code": res.Code, "msg": res.Msg}).
			Error("get_dbs returned error code")
	default:
		dbs = res.Dbs
	}

	s.dbsCache.Add(dbsCacheKey, dbs)
	return dbs
}

func (s *Service) processBatch(items []*tracker.FaceItem) {
	var dbs []string
	if !s.cfg.SkipSearch {
		dbs = s.getDbs()
	}

	// One candidate list per track that carries at least one feature.
	var persons [][]api.FeatureQuality
	for _, it := range items {
		var feas []api.FeatureQuality
		for i := range it.Notify.Faces {
			var f = &it.Notify.Faces[i]
			if len(f.FeatureBuf) > 0 {
				feas = append(feas, api.FeatureQuality{
					Feature: base64.StdEncoding.EncodeToString(f.FeatureBuf),
					Quality: f.Quality,
				})
			}
		}
		if len(feas) > 0 {
			persons = append(persons, feas)
		}
	}

	// A track without features would desynchronize the result mapping, so
	// the whole batch is forwarded unannotated.
	if s.cfg.SkipSearch || len(dbs) == 0 || len(persons) != len(items) {
		log.WithField("worker", s.num).Debug("skipping search for batch")
	} else {
		s.searchAndFill(dbs, persons, items)
	}

	for _, it := range items {
		s.out(tracker.Output{Face: it})
	}
}

func (s *Service) searchAndFill(dbs []string, persons [][]api.FeatureQuality, items []*tracker.FaceItem) {
	res, err := s.recg.Search(dbs, []int64{s.cfg.Top}, []int64{s.cfg.Threshold}, persons)
	if err != nil {
		log.WithFields(log.Fields{"worker": s.num, "err": err}).Error("search failed")
		return
	}
	if res.Code != 0 {
		log.WithFields(log.Fields{"worker": s.num, "code": res.Code, "msg": res.Msg}).
			Error("search returned error code")
		return
	}
	if len(res.Persons) != len(items) {
		log.WithFields(log.Fields{
			"worker": s.num, "items": len(items), "persons": len(res.Persons),
		}).Error("search result does not line up with batch")
		return
	}

	for i, it := range items {
		for _, p := range res.Persons[i] {
			it.Matches = append(it.Matches, tracker.MatchPerson{
				DbID:  p.Db,
				UUID:  p.ID,
				Score: p.Score,
			})
		}
	}
}
