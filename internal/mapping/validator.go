package mapping

import (
	"slices"
	"sync"
)

// Result is the outcome of checking one record.
type Result struct {
	Record Record
	Err    *ValidationError
	// DirectionFallback is set when the channel was only found with the
	// opposite is_output direction.
	DirectionFallback bool
}

// OK reports whether the record resolved.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report holds one Result per record, in record order.
type Report struct {
	Results []Result
}

// ErrorCount returns the number of records that did not resolve.
func (r *Report) ErrorCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Errors returns the validation errors in record order.
func (r *Report) Errors() []*ValidationError {
	var errs []*ValidationError
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errs
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrictDirection disables the retry with the opposite channel direction.
func WithStrictDirection() Option {
	return func(v *Validator) {
		v.strictDirection = true
	}
}

// WithWorkers checks up to n records concurrently. Results keep record order.
func WithWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

// Validator checks mapping records against a Directory. It never modifies
// the records or the directory.
type Validator struct {
	dir             Directory
	strictDirection bool
	workers         int
}

// NewValidator creates a validator for dir.
func NewValidator(dir Directory, opts ...Option) *Validator {
	v := &Validator{dir: dir, workers: 1}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks every record and returns a report in record order.
func (v *Validator) Validate(records []Record) *Report {
	report := &Report{Results: make([]Result, len(records))}

	if v.workers <= 1 || len(records) < 2 {
		for i, rec := range records {
			report.Results[i] = v.check(rec)
		}
		return report
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < v.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				report.Results[i] = v.check(records[i])
			}
		}()
	}
	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return report
}

func (v *Validator) check(rec Record) Result {
	res := Result{Record: rec}
	fail := func(err error) Result {
		res.Err = &ValidationError{
			Line:    rec.Line,
			Device:  rec.DeviceName,
			Channel: rec.ChannelName,
			Attr:    rec.AttrName,
			Err:     err,
		}
		return res
	}

	dev, ok := v.dir.FindDevice(rec.DeviceName)
	if !ok {
		return fail(ErrDeviceNotFound)
	}

	switch rec.AttrType {
	case AttrChannel:
		chn, ok := dev.FindChannel(rec.ChannelName, rec.IsOutput)
		if !ok && !v.strictDirection {
			chn, ok = dev.FindChannel(rec.ChannelName, !rec.IsOutput)
			res.DirectionFallback = ok
		}
		if !ok {
			return fail(ErrChannelNotFound)
		}
		attrs := chn.AttributeNames()
		if !slices.Contains(attrs, rec.AttrName) {
			res = fail(ErrChannelAttributeNotFound)
			n := min(len(attrs), maxSampleAttrs)
			res.Err.Samples = append([]string(nil), attrs[:n]...)
			res.Err.More = len(attrs) > maxSampleAttrs
			return res
		}
	case AttrDevice:
		if !slices.Contains(dev.AttributeNames(), rec.AttrName) {
			return fail(ErrDeviceAttributeNotFound)
		}
	case AttrDebug:
		if !slices.Contains(dev.DebugAttributeNames(), rec.AttrName) {
			return fail(ErrDebugAttributeNotFound)
		}
	}

	return res
}
