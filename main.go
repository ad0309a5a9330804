package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/config"
	"github.com/ldsec/collateral-learning/data"
	"github.com/ldsec/collateral-learning/distributed"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/experiment"
	"github.com/ldsec/collateral-learning/models"
	"github.com/ldsec/collateral-learning/sharing"
	"go.dedis.ch/onet/v3/log"
	"google.golang.org/grpc/benchmark/latency"
)

func main() {
	var (
		path string
		o    config.Overrides
	)
	flag.StringVar(&path, "config", "", "json run configuration")
	flag.StringVar(&o.Mode, "mode", "", fmt.Sprintf("one of %v", config.Modes))
	flag.StringVar(&o.ModelPath, "model", "", "quadratic model json")
	flag.StringVar(&o.DataPath, "data", "", "dataset json")
	flag.IntVar(&o.BatchSize, "batch", 0, "batch size")
	flag.IntVar(&o.MaxBatches, "max-batches", 0, "stop after this many batches")
	flag.IntVar(&o.FracBits, "frac-bits", 0, "fractional bits of the fixed point encoding")
	flag.Int64Var(&o.Seed, "seed", 0, "seed for sampling and shuffling (0 uses fresh randomness)")
	flag.StringVar(&o.DealerAddr, "dealer", "", "address of the crypto provider")
	flag.IntVar(&o.Epochs, "epochs", 0, "training epochs")
	flag.Float64Var(&o.LearningRate, "lr", 0, "learning rate")
	flag.BoolVar(&o.Verbose, "v", false, "print every batch")
	flag.BoolVar(&o.Quiet, "q", false, "print the summary only")
	flag.IntVar(&o.DebugLevel, "debug", 0, "log level")
	flag.Parse()

	cfg, err := config.ReadConfig(path)
	log.ErrFatal(err)
	cfg.ApplyOverrides(o)
	log.ErrFatal(cfg.Validate(), "invalid configuration")
	log.SetDebugVisible(cfg.DebugLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.ErrFatal(run(ctx, cfg))
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Mode == config.ModeDealer {
		return serveDealer(ctx, cfg)
	}
	train, test, err := loadSets(cfg)
	if err != nil {
		return err
	}
	if cfg.Mode == config.ModeTrain {
		return trainModel(ctx, cfg, train, test)
	}
	qn, err := models.LoadQuadNet(cfg.ModelPath)
	if err != nil {
		return err
	}
	opt := experiment.Options{BatchSize: cfg.BatchSize, MaxBatches: cfg.MaxBatches, Verbose: cfg.Verbose}

	switch cfg.Mode {
	case config.ModePlain:
		res, err := experiment.PlainEval(ctx, qn, test, opt)
		if err != nil {
			return err
		}
		res.PrintResult()
		return nil
	case config.ModeCollateral:
		return collateral(ctx, cfg, qn, train, test)
	}

	ev, closer, err := newEvaluator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer()

	switch cfg.Mode {
	case config.ModeSecure:
		res, err := experiment.SecureEval(ctx, qn, test, ev, opt)
		if err != nil {
			return err
		}
		res.PrintResult()
		log.Lvlf1("communication: %d rounds, %d field elements", ev.Comm().Rounds, ev.Comm().Elements)
	case config.ModeCompare:
		cmp, err := experiment.CompareEval(ctx, qn, test, ev, opt)
		if err != nil {
			return err
		}
		cmp.Plain.PrintResult()
		cmp.Secure.PrintResult()
		fmt.Printf("Agreement plain/secure: %.2f%%\n", 100*cmp.AgreementRate())
	}
	return nil
}

// collateralScorer returns the scores the adversary observes. They are the plaintext
// model outputs unless collateral.secure is set, in which case they are revealed
// from a secure evaluation and ev is the evaluator that produced them.
func collateralScorer(ctx context.Context, cfg *config.Config, qn *models.QuadNet) (scorer experiment.Scorer, ev *sharing.Evaluator, closer func(), err error) {
	if !cfg.Collateral.Secure {
		return experiment.PlainScorer(qn), nil, func() {}, nil
	}
	ev, closer, err = newEvaluator(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if scorer, err = experiment.SecureScorer(qn, ev); err != nil {
		closer()
		return nil, nil, nil, err
	}
	return scorer, ev, closer, nil
}

func collateral(ctx context.Context, cfg *config.Config, qn *models.QuadNet, train, test *data.Data) error {
	scorer, ev, closer, err := collateralScorer(ctx, cfg, qn)
	if err != nil {
		return err
	}
	defer closer()

	_, _, classes := qn.Dims()
	net := models.DefaultCollateralConfig(classes, max(train.NumAttributes(), test.NumAttributes()))
	c := cfg.Collateral
	if c.Side > 0 {
		net.Side = c.Side
	}
	if c.Kernel > 0 {
		net.Kernel = c.Kernel
	}
	if c.Channels[0] > 0 && c.Channels[1] > 0 {
		net.Channels = c.Channels
	}
	if c.Hidden > 0 {
		net.Hidden = c.Hidden
	}
	if c.Fonts > 0 {
		net.Fonts = c.Fonts
	}
	net.Seed = cfg.Seed
	res, err := experiment.Collateral(ctx, scorer, train, test, experiment.CollateralOptions{
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
		Net:          net,
	})
	if err != nil {
		return err
	}
	res.PrintResult()
	if ev != nil {
		log.Lvlf1("communication: %d rounds, %d field elements", ev.Comm().Rounds, ev.Comm().Elements)
	}
	return nil
}

func loadSets(cfg *config.Config) (*data.Data, *data.Data, error) {
	all, err := data.LoadData(cfg.DataPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.TestPath != "" {
		test, err := data.LoadData(cfg.TestPath)
		if err != nil {
			return nil, nil, err
		}
		return all, test, nil
	}
	all.Shuffle(cfg.Seed)
	return all.Split(cfg.TrainFraction)
}

func trainModel(ctx context.Context, cfg *config.Config, train, test *data.Data) error {
	qn := models.NewQuadNet(train.Features(), cfg.Hidden, train.NumClasses(), cfg.Seed)
	losses, err := experiment.TrainQuadNet(ctx, qn, train, experiment.TrainOptions{
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return err
	}
	log.Lvlf1("final training loss %f", losses[len(losses)-1])
	res, err := experiment.PlainEval(ctx, qn, test, experiment.Options{BatchSize: cfg.BatchSize})
	if err != nil {
		return err
	}
	res.PrintResult()
	return qn.Save(cfg.ModelPath)
}

func network(cfg *config.Config) *latency.Network {
	if cfg.SimulateLAN {
		return &distributed.Local
	}
	return &distributed.Lan
}

func sampler(field *fp.Field, cfg *config.Config, role string) (*sharing.Sampler, error) {
	if cfg.Seed == 0 {
		return sharing.NewSampler(field)
	}
	key := binary.LittleEndian.AppendUint64([]byte(role), uint64(cfg.Seed))
	return sharing.NewKeyedSampler(field, key)
}

// newEvaluator wires the computing participants to a crypto provider, in-process unless dealer_addr is set.
func newEvaluator(ctx context.Context, cfg *config.Config) (*sharing.Evaluator, func(), error) {
	field := fp.DefaultField()
	enc, err := fp.NewEncoder(cfg.FracBits, field)
	if err != nil {
		return nil, nil, err
	}
	s, err := sampler(field, cfg, "parties")
	if err != nil {
		return nil, nil, err
	}
	if cfg.DealerAddr == "" {
		ps, err := sampler(field, cfg, "provider")
		if err != nil {
			return nil, nil, err
		}
		return sharing.NewEvaluator(enc, sharing.NewProvider(field, ps), s), func() {}, nil
	}
	cl, err := distributed.Dial(ctx, cfg.DealerAddr, network(cfg))
	if err != nil {
		return nil, nil, err
	}
	log.Lvl1("using crypto provider at", cfg.DealerAddr)
	closer := func() {
		if err := cl.Close(); err != nil {
			log.Warn("closing dealer connection:", err)
		}
	}
	return sharing.NewEvaluator(enc, cl, s), closer, nil
}

func serveDealer(ctx context.Context, cfg *config.Config) error {
	field := fp.DefaultField()
	s, err := sampler(field, cfg, "provider")
	if err != nil {
		return err
	}
	d, err := distributed.NewDealer(sharing.NewProvider(field, s), cfg.DealerAddr, network(cfg))
	if err != nil {
		return err
	}
	log.Info("crypto provider listening on", d.Addr)
	<-ctx.Done()
	return errors.Wrap(d.Close(), "stopping crypto provider")
}
