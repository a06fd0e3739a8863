// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"io"
)

// ProgressFunc receives the fraction of an upload read so far, in [0, 1].
type ProgressFunc func(fraction float64)

// WithProgress wraps r so that every read reports progress against total
// bytes. If r can seek, the result can too, which lets the SDK rewind the
// body for payload signing and retries; a seek moves the reported position
// with it. A nil fn or non-positive total returns r unchanged.
func WithProgress(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil || total <= 0 {
		return r
	}
	p := &progressReader{r: r, total: total, fn: fn}
	if s, ok := r.(io.ReadSeeker); ok {
		return &progressReadSeeker{progressReader: p, s: s}
	}
	return p
}

type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report()
	}
	return n, err
}

func (p *progressReader) report() {
	f := float64(p.read) / float64(p.total)
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	p.fn(f)
}

type progressReadSeeker struct {
	*progressReader
	s io.Seeker
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.read = pos
	return pos, nil
}
