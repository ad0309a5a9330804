package data

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/cockroachdb/errors"
)

var ErrNoMoreBatches = errors.New("no more complete batches")

//Labeled samples: X are flattened images, Y the character class, Z the font family
type Data struct {
	X            [][]float64 `json:"X"`
	Y            []int       `json:"Y"`
	Z            []int       `json:"Z"`
	BatchSize    int         `json:"-"`
	NumBatches   int         `json:"-"`
	CurrentBatch int         `json:"-"`
}

type Batch struct {
	X [][]float64
	Y []int
	Z []int
}

func LoadData(path string) (*Data, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset %s", path)
	}
	var res Data
	if err := json.Unmarshal(buf, &res); err != nil {
		return nil, errors.Wrapf(err, "decoding dataset %s", path)
	}
	if err := res.Validate(); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", path)
	}
	return &res, nil
}

func (data *Data) Save(path string) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding dataset")
	}
	return errors.Wrapf(os.WriteFile(path, buf, 0o644), "writing dataset %s", path)
}

//checks that every sample has a primary and secondary label and the same number of features
func (data *Data) Validate() error {
	if len(data.X) == 0 {
		return errors.New("empty dataset")
	}
	if len(data.Y) != len(data.X) || len(data.Z) != len(data.X) {
		return errors.Newf("label count mismatch: %d samples, %d classes, %d attributes", len(data.X), len(data.Y), len(data.Z))
	}
	features := len(data.X[0])
	if features == 0 {
		return errors.New("samples have no features")
	}
	for i := range data.X {
		if len(data.X[i]) != features {
			return errors.Newf("sample %d has %d features, expected %d", i, len(data.X[i]), features)
		}
	}
	return nil
}

func (data *Data) Len() int {
	return len(data.Y)
}

func (data *Data) Features() int {
	if len(data.X) == 0 {
		return 0
	}
	return len(data.X[0])
}

//number of distinct primary labels, assuming labels are 0..n-1
func (data *Data) NumClasses() int {
	return maxLabel(data.Y) + 1
}

//number of distinct secondary labels, assuming labels are 0..n-1
func (data *Data) NumAttributes() int {
	return maxLabel(data.Z) + 1
}

func maxLabel(v []int) int {
	m := -1
	for _, l := range v {
		if l > m {
			m = l
		}
	}
	return m
}

func (data *Data) Init(batchSize int) error {
	if batchSize <= 0 {
		return errors.Newf("batch size must be > 0 (got %d)", batchSize)
	}
	data.BatchSize = batchSize
	data.NumBatches = len(data.Y) / batchSize
	data.CurrentBatch = 0
	return nil
}

func (data *Data) Batch() (Batch, error) {
	if data.CurrentBatch < data.NumBatches {
		i := data.CurrentBatch * data.BatchSize
		j := (data.CurrentBatch + 1) * data.BatchSize
		data.CurrentBatch += 1
		return Batch{X: data.X[i:j], Y: data.Y[i:j], Z: data.Z[i:j]}, nil
	}
	//last batch is incomplete
	return Batch{}, ErrNoMoreBatches
}

//permutes samples in place
func (data *Data) Shuffle(seed int64) {
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(data.Y), func(i, j int) {
		data.X[i], data.X[j] = data.X[j], data.X[i]
		data.Y[i], data.Y[j] = data.Y[j], data.Y[i]
		data.Z[i], data.Z[j] = data.Z[j], data.Z[i]
	})
}

//splits into train and test partitions. Samples are shared with data, not copied
func (data *Data) Split(trainFraction float64) (*Data, *Data, error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, errors.Newf("train fraction must be in (0,1) (got %f)", trainFraction)
	}
	n := int(float64(data.Len()) * trainFraction)
	if n == 0 || n == data.Len() {
		return nil, nil, errors.Newf("split of %d samples at %f leaves an empty partition", data.Len(), trainFraction)
	}
	train := &Data{X: data.X[:n], Y: data.Y[:n], Z: data.Z[:n]}
	test := &Data{X: data.X[n:], Y: data.Y[n:], Z: data.Z[n:]}
	return train, test, nil
}
