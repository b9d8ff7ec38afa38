// Package pipeline runs the unseal stages against one image:
// LOAD -> PARSE_SECTIONS -> DERIVE_KEY -> EXTRACT_CIPHERTEXT -> DECRYPT -> UNPAD -> REPORT.
//
// A Runner holds no per-run state and may be used from several goroutines.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/ZacharyZcR/PEUnseal/internal/config"
	"github.com/ZacharyZcR/PEUnseal/internal/keyfold"
	"github.com/ZacharyZcR/PEUnseal/internal/pe"
	"github.com/ZacharyZcR/PEUnseal/internal/unseal"
)

// Runner executes the pipeline with a fixed layout configuration.
type Runner struct {
	cfg    config.Config
	log    logrus.FieldLogger
	mapped bool
}

// New creates a runner. The configuration is validated once here.
func New(cfg config.Config, log logrus.FieldLogger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Runner{cfg: cfg, log: log}, nil
}

// SetMapped makes RunFile memory-map the image instead of reading it.
func (r *Runner) SetMapped(mapped bool) {
	r.mapped = mapped
}

// RunFile loads the image at path and runs every stage.
func (r *Runner) RunFile(path string) (*Report, error) {
	r.enter(StageLoad, logrus.Fields{"path": path, "mmap": r.mapped})

	var (
		img *pe.Image
		err error
	)
	if r.mapped {
		img, err = pe.LoadMapped(path)
	} else {
		img, err = pe.Load(path)
	}
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	defer func() { _ = img.Close() }()

	// Report fields are copies, so nothing aliases the mapping after Close.
	return r.Run(img)
}

// Run executes every stage after LOAD against an already loaded image.
func (r *Runner) Run(img *pe.Image) (*Report, error) {
	rep := &Report{
		ImagePath: img.Path(),
		ImageSize: img.Size(),
	}

	resolver, err := r.parseSections(img, rep)
	if err != nil {
		return nil, err
	}
	r.inspectHeaders(img, resolver, rep)

	r.enter(StageDeriveKey, logrus.Fields{"va": hexVA(r.cfg.PointerTableVA)})
	table, err := keyfold.ReadPointerTable(resolver, r.cfg.PointerTableVA, r.cfg.PointerCount)
	if err != nil {
		return nil, &StageError{Stage: StageDeriveKey, VA: r.cfg.PointerTableVA, Err: err}
	}
	digests, err := keyfold.HashBlocks(resolver, table, r.cfg.BlockSize)
	if err != nil {
		va := r.cfg.PointerTableVA
		var berr *keyfold.BlockError
		if errors.As(err, &berr) {
			va = berr.VA
		}
		return nil, &StageError{Stage: StageDeriveKey, VA: va, Err: err}
	}
	rep.PointerTable = table
	rep.Key = keyfold.Fold(digests)

	r.enter(StageExtractCiphertext, logrus.Fields{
		"iv_va":          hexVA(r.cfg.IVVA),
		"ciphertext_va":  hexVA(r.cfg.CiphertextVA),
		"ciphertext_len": r.cfg.CiphertextLen,
	})
	iv, ciphertext, err := unseal.Extract(resolver, r.cfg.IVVA, r.cfg.CiphertextVA, r.cfg.CiphertextLen)
	if err != nil {
		va := r.cfg.CiphertextVA
		var eerr *unseal.ExtractError
		if errors.As(err, &eerr) {
			va = eerr.VA
		}
		return nil, &StageError{Stage: StageExtractCiphertext, VA: va, Err: err}
	}
	rep.IV = iv
	rep.Ciphertext = ciphertext
	rep.CiphertextEntropy = pe.CalculateEntropy(ciphertext)

	r.enter(StageDecrypt, nil)
	res, err := unseal.Open(rep.Key[:], iv, ciphertext)
	if err != nil {
		return nil, &StageError{Stage: StageDecrypt, Err: err}
	}
	rep.Plaintext = res.Plaintext
	rep.PlaintextEntropy = pe.CalculateEntropy(res.Plaintext)

	r.enter(StageUnpad, nil)
	if res.PaddingErr != nil {
		rep.PaddingErr = res.PaddingErr
		r.log.WithFields(logrus.Fields{"stage": StageUnpad.String(), "reason": res.PaddingErr.Reason}).
			Warn("填充校验失败，保留完整解密数据")
	} else {
		rep.Unpadded = res.Unpadded
	}

	r.enter(StageReport, logrus.Fields{"padding_valid": rep.PaddingValid()})
	return rep, nil
}

// parseSections runs PARSE_SECTIONS and builds the resolver.
func (r *Runner) parseSections(img *pe.Image, rep *Report) (*pe.Resolver, error) {
	r.enter(StageParseSections, logrus.Fields{"size": img.Size()})

	sections, err := pe.ParseSections(img.Bytes())
	if err != nil {
		return nil, &StageError{Stage: StageParseSections, Err: err}
	}
	for _, s := range sections {
		rep.Sections = append(rep.Sections, SectionReport{
			Section: s,
			Entropy: pe.SectionEntropy(img.Bytes(), s),
		})
	}
	if r.debugEnabled() {
		r.log.WithField("count", len(sections)).Debugf("节区表:\n%s", spew.Sdump(sections))
	}

	info, infoErr := pe.NewAnalyzer(img).Analyze()
	if infoErr != nil {
		r.log.WithError(infoErr).Debug("无法读取可选头，跳过头部信息")
	}
	rep.Info = info

	imageBase := r.cfg.ImageBase
	if imageBase == 0 {
		if info == nil || info.ImageBase == 0 {
			err := &pe.MalformedHeaderError{Field: "可选头 ImageBase", Offset: 0x3C, Size: uint64(img.Size())}
			if infoErr != nil {
				return nil, &StageError{Stage: StageParseSections, Err: fmt.Errorf("%w (%v)", err, infoErr)}
			}
			return nil, &StageError{Stage: StageParseSections, Err: err}
		}
		imageBase = info.ImageBase
		rep.ImageBaseDetected = true
	}
	rep.ImageBase = imageBase

	return pe.NewResolver(img, sections, imageBase), nil
}

// inspectHeaders records the checksum and TLS callbacks. Neither is needed to
// decrypt, so failures are only logged.
func (r *Runner) inspectHeaders(img *pe.Image, resolver *pe.Resolver, rep *Report) {
	if sum, err := pe.ComputeChecksum(img.Bytes()); err != nil {
		r.log.WithError(err).Debug("无法计算校验和")
	} else {
		rep.Checksum = &sum
		if !sum.Valid() {
			r.log.WithFields(logrus.Fields{
				"stored":   fmt.Sprintf("0x%08X", sum.Stored),
				"computed": fmt.Sprintf("0x%08X", sum.Computed),
			}).Warn("校验和不匹配，文件可能被修改")
		}
	}

	if rep.Info == nil || rep.Info.TLSDirectory.VirtualAddress == 0 {
		return
	}
	callbacks, err := pe.ReadTLSCallbacks(resolver, rep.Info.TLSDirectory.VirtualAddress, rep.Info.Is64Bit)
	if err != nil {
		r.log.WithError(err).Debug("TLS回调表读取不完整")
	}
	rep.TLSCallbacks = callbacks
	if len(callbacks) > 0 {
		r.log.WithField("count", len(callbacks)).Debug("发现TLS回调")
	}
}

// debugEnabled reports whether Debug entries would be emitted, so callers can
// skip building expensive messages.
func (r *Runner) debugEnabled() bool {
	switch l := r.log.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	default:
		return true
	}
}

func (r *Runner) enter(stage Stage, fields logrus.Fields) {
	r.log.WithField("stage", stage.String()).WithFields(fields).Debug("进入阶段")
}

func hexVA(va uint64) string {
	return fmt.Sprintf("0x%X", va)
}
