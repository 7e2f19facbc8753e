package optim

import (
	"fmt"
	"strings"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
)

// Build constructs the optimizer and scheduler named by the config.
// totalSteps is the number of optimizer steps the schedule should cover,
// usually steps per epoch times epochs. A scheduler name of "none" yields
// a nil scheduler; callers keep the base rate fixed in that case.
func Build(cfg config.OptimConfig, params []*Parameter, totalSteps int) (Optimizer, Scheduler, error) {
	var opt Optimizer
	switch strings.ToLower(cfg.Name) {
	case "sgd":
		opt = NewSGD(params, cfg.Momentum, cfg.WeightDecay)
	case "adamw", "adam":
		opt = NewAdamW(params, cfg.Beta1, cfg.Beta2, cfg.Eps, cfg.WeightDecay)
	default:
		return nil, nil, fmt.Errorf("%w: optimizer %q", common.ErrUnknownOption, cfg.Name)
	}

	var sched Scheduler
	switch strings.ToLower(cfg.Scheduler) {
	case "", "none":
		sched = nil
	case "constant":
		sched = NewConstant(cfg.LR)
	case "warmup-cosine", "cosine":
		sched = NewWarmupCosine(cfg.LR, cfg.MinLR, cfg.WarmupSteps, totalSteps)
	default:
		return nil, nil, fmt.Errorf("%w: scheduler %q", common.ErrUnknownOption, cfg.Scheduler)
	}
	return opt, sched, nil
}
