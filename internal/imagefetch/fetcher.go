// Package imagefetch resolves btcfs:// and ipfs:// image-source URIs
// against configured HTTP gateways, with an in-process FIFO cache and
// parallel fan-out across a single fetch call (spec §4.B).
package imagefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

// Gateways maps an fs-scheme ("btcfs", "ipfs") to the HTTP base URL that
// serves it, taken verbatim from Settings.ImageFetcherURL.
type Gateways map[string]string

// Fetcher fetches and caches images referenced by btcfs/ipfs URIs. A
// single Fetcher is safe for concurrent use; its cache has one mutable
// owner guarded by a mutex, matching the spec's "single mutable owner"
// cache discipline.
type Fetcher struct {
	gateways Gateways
	client   *http.Client

	mu    sync.Mutex
	cache *fifoCache
}

// New builds a Fetcher with a bounded FIFO cache of maxCacheSize entries.
func New(gateways Gateways, maxCacheSize int) *Fetcher {
	return &Fetcher{
		gateways: gateways,
		client:   &http.Client{},
		cache:    newFIFOCache(maxCacheSize),
	}
}

// Fetch resolves every URI in uris to its image bytes, order-preserving.
// All network fetches within one call are issued in parallel and awaited
// together; cache inserts happen sequentially afterward, in input order.
func (f *Fetcher) Fetch(ctx context.Context, uris []string) ([][]byte, error) {
	results := make([][]byte, len(uris))
	resolvedURLs := make([]string, len(uris))
	cacheHit := make([]bool, len(uris))

	for i, uri := range uris {
		parsed, err := parseURI(uri)
		if err != nil {
			return nil, err
		}
		resolvedURLs[i] = f.resolvedURL(parsed)

		f.mu.Lock()
		if bytes, ok := f.cache.get(resolvedURLs[i]); ok {
			results[i] = bytes
			cacheHit[i] = true
		}
		f.mu.Unlock()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, uri := range uris {
		if cacheHit[i] {
			continue
		}
		i, uri := i, uri
		group.Go(func() error {
			parsed, err := parseURI(uri)
			if err != nil {
				return err
			}
			data, err := f.fetchOne(groupCtx, parsed)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	for i := range uris {
		if !cacheHit[i] {
			f.cache.put(resolvedURLs[i], results[i])
		}
	}
	f.mu.Unlock()

	return results, nil
}

func (f *Fetcher) resolvedURL(p *parsedURI) string {
	switch p.kind {
	case uriKindBtcfs:
		return f.gateways["btcfs"] + p.txHash
	case uriKindIPFS:
		return f.gateways["ipfs"] + p.cid
	default:
		return p.raw
	}
}

func (f *Fetcher) fetchOne(ctx context.Context, p *parsedURI) ([]byte, error) {
	switch p.kind {
	case uriKindBtcfs:
		return f.fetchBtcfs(ctx, p)
	case uriKindIPFS:
		return f.fetchIPFS(ctx, p)
	default:
		return nil, dobtype.New(dobtype.KindFsuriNotFoundInConfig, fmt.Sprintf("unrecognized uri scheme: %s", p.raw))
	}
}

// btcTransaction is the subset of a BTC explorer's transaction JSON this
// server needs: the witness-script ASM of each input.
type btcTransaction struct {
	Vin []struct {
		InnerWitnessscriptAsm string `json:"inner_witnessscript_asm"`
	} `json:"vin"`
}

func (f *Fetcher) fetchBtcfs(ctx context.Context, p *parsedURI) ([]byte, error) {
	base, ok := f.gateways["btcfs"]
	if !ok {
		return nil, dobtype.New(dobtype.KindFsuriNotFoundInConfig, "no image_fetcher_url entry for scheme \"btcfs\"")
	}

	body, err := f.httpGet(ctx, base+p.txHash)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchFromBtcNodeError, fmt.Sprintf("fetch btc tx %s", p.txHash), err)
	}

	var tx btcTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, dobtype.Wrap(dobtype.KindInvalidBtcTransactionFormat, "parse btc transaction JSON", err)
	}
	if p.vinIndex < 0 || p.vinIndex >= len(tx.Vin) {
		return nil, dobtype.New(dobtype.KindInvalidBtcTransactionFormat,
			fmt.Sprintf("vin index %d out of range (tx has %d inputs)", p.vinIndex, len(tx.Vin)))
	}

	return extractInscriptionImageAt(tx.Vin[p.vinIndex].InnerWitnessscriptAsm, 0)
}

func (f *Fetcher) fetchIPFS(ctx context.Context, p *parsedURI) ([]byte, error) {
	base, ok := f.gateways["ipfs"]
	if !ok {
		return nil, dobtype.New(dobtype.KindFsuriNotFoundInConfig, "no image_fetcher_url entry for scheme \"ipfs\"")
	}
	body, err := f.httpGet(ctx, base+p.cid)
	if err != nil {
		return nil, dobtype.Wrap(dobtype.KindFetchFromIpfsError, fmt.Sprintf("fetch ipfs cid %s", p.cid), err)
	}
	return body, nil
}

func (f *Fetcher) httpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}
	return body, nil
}
