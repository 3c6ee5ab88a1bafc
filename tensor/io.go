package tensor

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// File format, inside a zstd stream:
//   magic "vt1\n"
//   rank as uvarint
//   for each index: direction as a signed varint, dimension as uvarint,
//   then the slot charges as signed varints
//   entries in row major order, real and imaginary parts as little endian
//   IEEE 754 doubles

var fileMagic = []byte("vt1\n")

// Write writes t to w.
func Write(w io.Writer, t *Dense) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(fileMagic); err != nil {
		return errors.Wrap(err, "")
	}
	var scratch [binary.MaxVarintLen64]byte
	writeUvarint := func(v uint64) error {
		n := binary.PutUvarint(scratch[:], v)
		_, err := bw.Write(scratch[:n])
		return err
	}
	writeVarint := func(v int64) error {
		n := binary.PutVarint(scratch[:], v)
		_, err := bw.Write(scratch[:n])
		return err
	}

	if err := writeUvarint(uint64(t.Rank())); err != nil {
		return errors.Wrap(err, "")
	}
	for _, x := range t.indexes {
		if err := writeVarint(int64(x.Dir)); err != nil {
			return errors.Wrap(err, "")
		}
		if err := writeUvarint(uint64(x.Dim())); err != nil {
			return errors.Wrap(err, "")
		}
		for _, q := range x.Charges {
			if err := writeVarint(int64(q)); err != nil {
				return errors.Wrap(err, "")
			}
		}
	}
	var b8 [8]byte
	for _, v := range t.data {
		binary.LittleEndian.PutUint64(b8[:], math.Float64bits(real(v)))
		if _, err := bw.Write(b8[:]); err != nil {
			return errors.Wrap(err, "")
		}
		binary.LittleEndian.PutUint64(b8[:], math.Float64bits(imag(v)))
		if _, err := bw.Write(b8[:]); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Read reads a tensor written by Write from r.
func Read(r io.Reader) (*Dense, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if string(magic) != string(fileMagic) {
		return nil, errors.Errorf("bad magic %q", magic)
	}

	rank, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	indexes := make([]Index, rank)
	for i := range indexes {
		dir, err := binary.ReadVarint(br)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if dir != int64(In) && dir != int64(Out) {
			return nil, errors.Errorf("bad direction %d", dir)
		}
		dim, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if dim == 0 {
			return nil, errors.Errorf("zero dimension index %d", i)
		}
		charges := make([]int, dim)
		for j := range charges {
			q, err := binary.ReadVarint(br)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			charges[j] = int(q)
		}
		indexes[i] = Index{Dir: Dir(dir), Charges: charges}
	}

	t := Zeros(indexes...)
	var b8 [8]byte
	for i := range t.data {
		if _, err := io.ReadFull(br, b8[:]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		re := math.Float64frombits(binary.LittleEndian.Uint64(b8[:]))
		if _, err := io.ReadFull(br, b8[:]); err != nil {
			return nil, errors.Wrap(err, "")
		}
		im := math.Float64frombits(binary.LittleEndian.Uint64(b8[:]))
		t.data[i] = complex(re, im)
	}
	return t, nil
}

// WriteFile writes t to fpath as a zstd compressed stream.
func WriteFile(fpath string, t *Dense) error {
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := Write(zw, t); err != nil {
		zw.Close()
		return errors.Wrap(err, "")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadFile reads a tensor written by WriteFile.
func ReadFile(fpath string) (*Dense, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer zr.Close()

	t, err := Read(zr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return t, nil
}
