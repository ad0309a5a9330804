package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sample(n int) *Data {
	d := &Data{}
	for i := 0; i < n; i++ {
		d.X = append(d.X, []float64{float64(i), float64(i) / 2})
		d.Y = append(d.Y, i%3)
		d.Z = append(d.Z, i%2)
	}
	return d
}

func TestBatching(t *testing.T) {
	d := sample(25)
	require.NoError(t, d.Init(10))
	require.Equal(t, 2, d.NumBatches)

	b, err := d.Batch()
	require.NoError(t, err)
	require.Len(t, b.X, 10)
	require.Equal(t, 0, b.Y[0])

	b, err = d.Batch()
	require.NoError(t, err)
	require.Equal(t, 10.0, b.X[0][0])

	_, err = d.Batch()
	require.ErrorIs(t, err, ErrNoMoreBatches)
	require.Error(t, d.Init(0))
}

func TestSplitAndLabels(t *testing.T) {
	d := sample(10)
	require.Equal(t, 3, d.NumClasses())
	require.Equal(t, 2, d.NumAttributes())

	train, test, err := d.Split(0.8)
	require.NoError(t, err)
	require.Equal(t, 8, train.Len())
	require.Equal(t, 2, test.Len())
	require.Equal(t, 8.0, test.X[0][0])

	_, _, err = d.Split(1)
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	d := sample(6)
	d.Shuffle(3)
	path := filepath.Join(t.TempDir(), "fonts.json")
	require.NoError(t, d.Save(path))

	back, err := LoadData(path)
	require.NoError(t, err)
	require.Equal(t, d.X, back.X)
	require.Equal(t, d.Y, back.Y)
	require.Equal(t, d.Z, back.Z)
}

func TestValidate(t *testing.T) {
	d := sample(4)
	d.Z = d.Z[:3]
	require.Error(t, d.Validate())

	d = sample(4)
	d.X[2] = []float64{1}
	require.Error(t, d.Validate())

	require.Error(t, (&Data{}).Validate())

	path := filepath.Join(t.TempDir(), "nofeatures.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"X":[[],[]],"Y":[0,1],"Z":[0,1]}`), 0o644))
	_, err := LoadData(path)
	require.Error(t, err)
}
