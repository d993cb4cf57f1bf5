// Package pipeline orchestrates the decode state machine: spore/cluster
// resolution, decoder fetch, RISC-V execution, and DOB/0 vs DOB/1
// branching (spec §4.G).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sporeprotocol/dob-decoder-go/internal/decoderresolver"
	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
	"github.com/sporeprotocol/dob-decoder-go/internal/imagefetch"
	"github.com/sporeprotocol/dob-decoder-go/internal/rendercache"
	"github.com/sporeprotocol/dob-decoder-go/internal/riscv"
	"github.com/sporeprotocol/dob-decoder-go/internal/spore"
	"github.com/sporeprotocol/dob-decoder-go/internal/syscalls"
)

// Pipeline bundles every collaborator a decode request touches, mirroring
// the onchain adapter's "one struct holding every client" shape in the
// teacher.
type Pipeline struct {
	Reader      *spore.Reader
	Resolver    *decoderresolver.Resolver
	ImageSource *imagefetch.Fetcher
	RenderCache *rendercache.Cache
	MaxCombination int
}

// DecodeDNA runs the full state machine for a spore id: render-cache
// lookup, spore/cluster fetch, V0/V1 dispatch, decoder execution, and
// render-cache write-back on success.
func (p *Pipeline) DecodeDNA(ctx context.Context, sporeID string) (*DecodeResult, error) {
	if cached, err := p.RenderCache.Get(sporeID, time.Now()); err != nil {
		return nil, err
	} else if cached != nil {
		return &DecodeResult{RenderOutput: cached.RenderedOutput, DobContent: cached.DobContent}, nil
	}

	content, err := p.Reader.FetchSpore(ctx, sporeID)
	if err != nil {
		return nil, err
	}
	cluster, err := p.Reader.FetchCluster(ctx, content.ClusterID)
	if err != nil {
		return nil, err
	}

	var renderOutput string
	var dobContent json.RawMessage

	switch cluster.Version {
	case spore.DOBVersionV0:
		renderOutput, err = p.runV0(ctx, content, cluster.V0)
		if err != nil {
			return nil, err
		}
		dobContent = json.RawMessage(renderOutput)
		if !json.Valid(dobContent) {
			encoded, marshalErr := json.Marshal(renderOutput)
			if marshalErr != nil {
				return nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "encode V0 render output", marshalErr)
			}
			dobContent = encoded
		}

	case spore.DOBVersionV1:
		renderOutput, dobContent, err = p.runV1(ctx, content, cluster.V1)
		if err != nil {
			return nil, err
		}

	default:
		return nil, dobtype.New(dobtype.KindDOBVersionNumberUndefined, "cluster description carries neither V0 nor V1")
	}

	if err := p.RenderCache.Put(sporeID, renderOutput, dobContent, time.Now()); err != nil {
		return nil, err
	}
	return &DecodeResult{RenderOutput: renderOutput, DobContent: dobContent}, nil
}

// DecodeRaw implements dob_raw_decode (spec §6.3): the caller supplies the
// spore and cluster cell data directly, bypassing the on-chain lookup and
// the render cache (there is no spore id to key a cache entry on, and the
// spec's determinism property requires byte-identical output for a fixed
// input pair rather than a TTL'd cache entry).
func (p *Pipeline) DecodeRaw(ctx context.Context, sporeCellData, clusterCellData []byte) (*DecodeResult, error) {
	content, err := spore.DecodeCellData(sporeCellData)
	if err != nil {
		return nil, err
	}
	cluster, err := spore.DecodeClusterCellData(clusterCellData)
	if err != nil {
		return nil, err
	}

	var renderOutput string
	var dobContent json.RawMessage

	switch cluster.Version {
	case spore.DOBVersionV0:
		renderOutput, err = p.runV0(ctx, content, cluster.V0)
		if err != nil {
			return nil, err
		}
		dobContent = json.RawMessage(renderOutput)
		if !json.Valid(dobContent) {
			encoded, marshalErr := json.Marshal(renderOutput)
			if marshalErr != nil {
				return nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "encode V0 render output", marshalErr)
			}
			dobContent = encoded
		}

	case spore.DOBVersionV1:
		renderOutput, dobContent, err = p.runV1(ctx, content, cluster.V1)
		if err != nil {
			return nil, err
		}

	default:
		return nil, dobtype.New(dobtype.KindDOBVersionNumberUndefined, "cluster description carries neither V0 nor V1")
	}

	return &DecodeResult{RenderOutput: renderOutput, DobContent: dobContent}, nil
}

// runV0 resolves and executes the cluster's single decoder stage.
func (p *Pipeline) runV0(ctx context.Context, content *spore.SporeCellContent, stage *spore.DecoderStage) (string, error) {
	if stage == nil {
		return "", dobtype.New(dobtype.KindDecoderChainIsEmpty, "V0 cluster description has no decoder stage")
	}
	pattern, err := patternArgument(stage.Pattern)
	if err != nil {
		return "", dobtype.Wrap(dobtype.KindDOBMetadataUnexpected, "serialize V0 pattern", err)
	}

	lines, err := p.runDecoder(ctx, stage.Decoder, [][]byte{[]byte(content.DNA), []byte(pattern)})
	if err != nil {
		return "", err
	}
	if len(lines) == 0 || lines[0] == "" {
		return "", dobtype.New(dobtype.KindDecoderOutputInvalid, "decoder produced no output")
	}
	return lines[0], nil
}

// runV1 executes the chained decoder stages, carrying each stage's
// parsed output forward as the next stage's third argument.
func (p *Pipeline) runV1(ctx context.Context, content *spore.SporeCellContent, stages []spore.DecoderStage) (string, json.RawMessage, error) {
	if len(stages) == 0 {
		return "", nil, dobtype.New(dobtype.KindDecoderChainIsEmpty, "V1 cluster description has no decoder stages")
	}

	var carry []StandardDOBOutput
	for i, stage := range stages {
		pattern, err := patternArgument(stage.Pattern)
		if err != nil {
			return "", nil, dobtype.Wrap(dobtype.KindDOBMetadataUnexpected, fmt.Sprintf("serialize stage %d pattern", i), err)
		}

		args := [][]byte{[]byte(content.DNA), []byte(pattern)}
		if i > 0 {
			carryJSON, err := json.Marshal(carry)
			if err != nil {
				return "", nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "serialize carried stage output", err)
			}
			canon, err := canonicalJSON(carryJSON)
			if err != nil {
				return "", nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "canonicalize carried stage output", err)
			}
			args = append(args, canon)
		}

		lines, err := p.runDecoder(ctx, stage.Decoder, args)
		if err != nil {
			return "", nil, err
		}
		if len(lines) == 0 || lines[0] == "" {
			return "", nil, dobtype.New(dobtype.KindDecoderOutputInvalid, fmt.Sprintf("stage %d produced no output", i))
		}

		var next []StandardDOBOutput
		if err := json.Unmarshal([]byte(lines[0]), &next); err != nil {
			return "", nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, fmt.Sprintf("parse stage %d output", i), err)
		}
		carry = next
	}

	final, err := json.Marshal(carry)
	if err != nil {
		return "", nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "serialize final V1 output", err)
	}
	canon, err := canonicalJSON(final)
	if err != nil {
		return "", nil, dobtype.Wrap(dobtype.KindDecoderOutputInvalid, "canonicalize final V1 output", err)
	}
	return string(canon), canon, nil
}

// runDecoder resolves a decoder binary and executes it inside a fresh
// RISC-V machine wired with the debug and combine_images syscalls (spec
// §4.E / §4.F). A Machine is created and discarded per execution.
func (p *Pipeline) runDecoder(ctx context.Context, descriptor spore.DecoderDescriptor, args [][]byte) ([]string, error) {
	path, err := p.Resolver.Resolve(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderBinaryNotFoundInCell, "read cached decoder binary", err)
	}

	machine := riscv.New(
		syscalls.Debug{},
		syscalls.CombineImages{Source: imageSourceAdapter{p.ImageSource}, MaxCombination: p.MaxCombination},
	)
	if err := machine.LoadProgram(code, args); err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderExecutionInternalError, "load decoder program", err)
	}

	exitCode, lines, err := machine.Run()
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindDecoderExecutionError, "execute decoder", err)
	}
	if exitCode != 0 {
		return nil, dobtype.New(dobtype.KindDecoderExecutionInternalError, fmt.Sprintf("decoder exited with code %d", exitCode))
	}
	return lines, nil
}

// imageSourceAdapter narrows *imagefetch.Fetcher to the syscalls.ImageSource
// interface so internal/syscalls never imports internal/imagefetch directly.
type imageSourceAdapter struct {
	fetcher *imagefetch.Fetcher
}

func (a imageSourceAdapter) Fetch(ctx context.Context, uris []string) ([][]byte, error) {
	return a.fetcher.Fetch(ctx, uris)
}
