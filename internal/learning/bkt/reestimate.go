package bkt

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
)

const ReasonInsufficientData = "insufficient_data"

type Reestimation struct {
	SkillID      string        `json:"skill_id"`
	Adjusted     bool          `json:"adjusted"`
	Reason       string        `json:"reason,omitempty"`
	Observations int           `json:"observations"`
	Before       skills.Params `json:"before"`
	After        skills.Params `json:"after"`
}

type paramEstimate struct {
	slip, guess, transit          float64
	hasSlip, hasGuess, hasTransit bool
}

const watermarksKey = "bkt:reestimate:watermarks"

// ReestimateParameters refits slip, guess and transit for every skill from
// the observations logged since its last fit and blends the fit into the
// current parameters. Each observation is blended in at most once. Skills
// with fewer new observations than the minimum are reported with
// ReasonInsufficientData and keep accumulating.
func (e *Estimator) ReestimateParameters(ctx context.Context) ([]Reestimation, error) {
	obs, err := e.loadObservations(ctx)
	if err != nil {
		return nil, err
	}
	marks, err := kv.Load[map[string]int64](ctx, e.store, watermarksKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load re-estimation watermarks: %w", err)
	}
	if marks == nil {
		marks = map[string]int64{}
	}
	bySkill := map[string][]Observation{}
	for _, o := range obs {
		if o.SkillID != "" && o.Seq > marks[o.SkillID] {
			bySkill[o.SkillID] = append(bySkill[o.SkillID], o)
		}
	}
	if len(bySkill) == 0 {
		return []Reestimation{}, nil
	}
	ids := make([]string, 0, len(bySkill))
	for id := range bySkill {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	kcs, err := e.skills.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Reestimation, 0, len(ids))
	updates := map[string]skills.Params{}
	for _, id := range ids {
		kc := kcs[id]
		list := bySkill[id]
		res := Reestimation{SkillID: id, Observations: len(list), Before: kc.Params, After: kc.Params}
		if len(list) < e.cfg.MinObservations {
			res.Reason = ReasonInsufficientData
			out = append(out, res)
			continue
		}
		est := e.fit(list)
		if !est.hasSlip && !est.hasGuess && !est.hasTransit {
			res.Reason = ReasonInsufficientData
			out = append(out, res)
			continue
		}
		marks[id] = list[len(list)-1].Seq
		res.After = e.blend(kc.Params, est)
		res.Adjusted = res.After != res.Before
		if res.Adjusted {
			updates[id] = res.After
		} else {
			res.Reason = "unchanged"
		}
		out = append(out, res)
	}

	if err := e.skills.UpdateParamsMany(ctx, updates); err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, watermarksKey, marks); err != nil {
		return nil, fmt.Errorf("save re-estimation watermarks: %w", err)
	}
	e.log.Info("bkt parameters re-estimated", "skills", len(ids), "adjusted", len(updates))
	return out, nil
}

func (e *Estimator) fit(list []Observation) paramEstimate {
	var (
		est              paramEstimate
		highN, highWrong int
		lowN, lowRight   int
		gainN            int
		gainSum          float64
	)
	for _, o := range list {
		if o.Before > e.cfg.HighMasteryCutoff {
			highN++
			if !o.Correct {
				highWrong++
			}
		}
		if o.Before < e.cfg.LowMasteryCutoff {
			lowN++
			if o.Correct {
				lowRight++
			}
		}
		if d := o.After - o.Before; d > 0 {
			gainN++
			gainSum += d
		}
	}
	if highN > 0 {
		est.slip, est.hasSlip = clampRange(float64(highWrong)/float64(highN), 0, 0.5), true
	}
	if lowN > 0 {
		est.guess, est.hasGuess = clampRange(float64(lowRight)/float64(lowN), 0, 0.5), true
	}
	if gainN > 0 {
		est.transit, est.hasTransit = clamp01(gainSum/float64(gainN)), true
	}
	return est
}

func (e *Estimator) blend(cur skills.Params, est paramEstimate) skills.Params {
	b := e.cfg.BlendFactor
	mix := func(old, fitted float64) float64 { return old*(1-b) + fitted*b }
	next := cur
	if est.hasSlip {
		next.PSlip = mix(cur.PSlip, est.slip)
	}
	if est.hasGuess {
		next.PGuess = mix(cur.PGuess, est.guess)
	}
	if est.hasTransit {
		next.PTransit = mix(cur.PTransit, est.transit)
	}
	return next
}
