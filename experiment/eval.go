// Package experiment runs the evaluation and collateral-learning loops.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/data"
	"github.com/ldsec/collateral-learning/models"
	"github.com/ldsec/collateral-learning/plainUtils"
	"github.com/ldsec/collateral-learning/sharing"
	"github.com/ldsec/collateral-learning/utils"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
)

type Options struct {
	BatchSize  int
	MaxBatches int  //0 evaluates every complete batch
	Verbose    bool //print accuracy of every batch
}

// Scorer maps a batch of samples to raw class scores.
type Scorer func(ctx context.Context, X mat.Matrix) (*mat.Dense, error)

func PlainScorer(qn *models.QuadNet) Scorer {
	return func(_ context.Context, X mat.Matrix) (*mat.Dense, error) {
		return qn.ForwardRaw(X)
	}
}

// SecureScorer shares the model once; every call shares X, evaluates over shares and reveals the scores.
func SecureScorer(qn *models.QuadNet, ev *sharing.Evaluator) (Scorer, error) {
	sq, err := qn.ShareWeights(ev)
	if err != nil {
		return nil, errors.Wrap(err, "sharing model")
	}
	return func(ctx context.Context, X mat.Matrix) (*mat.Dense, error) {
		x, err := ev.Share(X)
		if err != nil {
			return nil, errors.Wrap(err, "sharing input")
		}
		res, err := sq.ForwardShared(ctx, ev, x)
		if err != nil {
			return nil, err
		}
		return ev.Reveal(res)
	}, nil
}

// Eval predicts the primary label of every batch with scorer and accumulates accuracy.
// The first error aborts the run.
func Eval(ctx context.Context, scorer Scorer, ds *data.Data, opt Options) (utils.Stats, error) {
	result := utils.NewStats(opt.BatchSize)
	if err := ds.Init(opt.BatchSize); err != nil {
		return result, err
	}
	for iters := 0; opt.MaxBatches == 0 || iters < opt.MaxBatches; iters++ {
		batch, err := ds.Batch()
		if errors.Is(err, data.ErrNoMoreBatches) {
			//dataset completed
			break
		}
		start := time.Now()
		scores, err := scorer(ctx, plainUtils.NewDense(batch.X))
		if err != nil {
			return result, errors.Wrapf(err, "batch %d", iters)
		}
		end := time.Since(start)
		corrects, accuracy, predictions := utils.Predict(batch.Y, plainUtils.MatToArray(scores))
		if opt.Verbose {
			fmt.Printf("Batch %d accuracy: %.2f%%\n", iters, 100*accuracy)
		}
		log.Lvlf2("batch %d evaluated in %v", iters, end)
		result.Predictions = append(result.Predictions, predictions...)
		result.Accumulate(utils.Stats{Corrects: corrects, Total: len(batch.Y), Accuracy: accuracy, Time: end.Milliseconds()})
	}
	return result, nil
}

func PlainEval(ctx context.Context, qn *models.QuadNet, ds *data.Data, opt Options) (utils.Stats, error) {
	return Eval(ctx, PlainScorer(qn), ds, opt)
}

// SecureEval runs the model in raw mode over shares; argmax happens after reconstruction.
func SecureEval(ctx context.Context, qn *models.QuadNet, ds *data.Data, ev *sharing.Evaluator, opt Options) (utils.Stats, error) {
	scorer, err := SecureScorer(qn, ev)
	if err != nil {
		return utils.Stats{}, err
	}
	return Eval(ctx, scorer, ds, opt)
}

type Comparison struct {
	Plain, Secure utils.Stats
	Agreement     int //samples with the same predicted class in both modes
	Comm          sharing.Comm
}

func (c *Comparison) AgreementRate() float64 {
	if len(c.Plain.Predictions) == 0 {
		return 0
	}
	return float64(c.Agreement) / float64(len(c.Plain.Predictions))
}

// CompareEval evaluates the same batches in plaintext and over shares.
func CompareEval(ctx context.Context, qn *models.QuadNet, ds *data.Data, ev *sharing.Evaluator, opt Options) (*Comparison, error) {
	plain, err := PlainEval(ctx, qn, ds, opt)
	if err != nil {
		return nil, errors.Wrap(err, "plaintext evaluation")
	}
	ev.ResetComm()
	secure, err := SecureEval(ctx, qn, ds, ev, opt)
	if err != nil {
		return nil, errors.Wrap(err, "secure evaluation")
	}
	cmp := &Comparison{Plain: plain, Secure: secure, Comm: ev.Comm()}
	for i := range plain.Predictions {
		if plain.Predictions[i] == secure.Predictions[i] {
			cmp.Agreement++
		}
	}
	return cmp, nil
}
