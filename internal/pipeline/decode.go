package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kmirek/vtape/internal/audit"
	"github.com/kmirek/vtape/internal/chunker"
	"github.com/kmirek/vtape/internal/crypto"
	"github.com/kmirek/vtape/internal/debug"
	"github.com/kmirek/vtape/internal/fountain"
	"github.com/kmirek/vtape/internal/frame"
	"github.com/kmirek/vtape/internal/packet"
)

// chunkState accumulates symbols for one chunk during the scan phase.
type chunkState struct {
	dec     *fountain.Decoder
	k       int
	origLen uint32
}

// Decode recovers the original file from the container at inputPath and
// writes it to outputPath, returning the decoded SHA-256. No output file
// is left behind on failure.
func (c *Codec) Decode(ctx context.Context, inputPath, outputPath, password string) (*Result, error) {
	start := time.Now()
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	source, err := c.newSource(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{
		"input":  inputPath,
		"output": outputPath,
	})
	log.Info("decode started")

	res, derr := c.runDecode(source, outputPath, password)

	event := audit.Event{
		EventType: audit.EventDecode,
		Input:     inputPath,
		Output:    outputPath,
		Encrypted: password != "",
		Success:   derr == nil,
		Duration:  time.Since(start).Milliseconds(),
	}
	if derr != nil {
		source.Kill()
		event.Error = derr.Error()
		c.logAudit(event)
		return nil, derr
	}

	res.Duration = time.Since(start)
	if c.met != nil {
		c.met.OperationDuration.WithLabelValues("decode").Observe(res.Duration.Seconds())
	}
	event.SHA256 = res.SHA256
	event.FileID = res.FileID
	event.Bytes = res.Bytes
	c.logAudit(event)

	log.WithFields(logrus.Fields{
		"bytes":    res.Bytes,
		"chunks":   res.Chunks,
		"packets":  res.Packets,
		"duration": res.Duration,
	}).Info("decode finished")
	return res, nil
}

func (c *Codec) runDecode(source FrameSource, outputPath, password string) (*Result, error) {
	extractor := frame.NewExtractor(c.cfg)
	pr, pw := io.Pipe()

	type extractResult struct {
		frames int
		err    error
	}
	extractCh := make(chan extractResult, 1)
	go func() {
		frames, xerr := extractor.Extract(source, pw)
		pw.CloseWithError(xerr)
		extractCh <- extractResult{frames: frames, err: xerr}
	}()

	// Scan the extracted byte stream, grouping symbols per chunk. The
	// first valid packet pins the transfer identity; strays from other
	// encodes are dropped.
	var (
		fileID      [16]byte
		haveID      bool
		totalChunks uint32
		encrypted   bool
		states      = make(map[uint32]*chunkState)
		strays      int
	)
	var tap bytes.Buffer
	var scanSrc io.Reader = pr
	if debug.Enabled() {
		scanSrc = io.TeeReader(pr, &tap)
	}
	scanner := packet.NewScanner(scanSrc, c.cfg.SymbolSize)
	for {
		pkt, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			<-extractCh
			return nil, err
		}
		if !haveID {
			fileID = pkt.FileID
			totalChunks = pkt.TotalChunks
			encrypted = pkt.Encrypted
			haveID = true
		} else if pkt.FileID != fileID {
			strays++
			continue
		}
		if pkt.ChunkIndex >= totalChunks {
			strays++
			continue
		}

		st, ok := states[pkt.ChunkIndex]
		if !ok {
			st = &chunkState{
				dec:     fountain.NewDecoder(int(pkt.K), c.cfg.SymbolSize),
				k:       int(pkt.K),
				origLen: pkt.ChunkOriginalLen,
			}
			states[pkt.ChunkIndex] = st
		}
		if int(pkt.K) != st.k || pkt.ChunkOriginalLen != st.origLen {
			strays++
			continue
		}
		st.dec.Add(uint32(pkt.SymbolIndex), pkt.Seed, pkt.Payload)
	}

	extract := <-extractCh
	if debug.Enabled() {
		if derr := debug.DumpBytes(filepath.Dir(outputPath), "extracted-stream.bin", tap.Bytes()); derr != nil {
			c.log.WithError(derr).Warn("failed to dump extracted stream")
		}
	}
	if extract.err != nil {
		return nil, extract.err
	}
	if err := source.Close(); err != nil {
		return nil, err
	}
	if c.met != nil {
		c.met.FramesRead.Add(float64(extract.frames))
		c.met.PacketsScanned.Add(float64(scanner.Scanned()))
		c.met.PacketsRejected.Add(float64(scanner.Rejected()))
	}
	if strays > 0 {
		c.log.WithField("packets", strays).Warn("dropped stray packets from a different transfer")
	}

	if !haveID {
		return nil, ErrNoPackets
	}
	if encrypted && password == "" {
		return nil, ErrPasswordRequired
	}
	var sealer *crypto.Sealer
	if encrypted {
		var err error
		if sealer, err = crypto.NewSealer(password, fileID[:]); err != nil {
			return nil, err
		}
	}

	// Fountain-decode every chunk in parallel, then decrypt and collect.
	asm := chunker.NewAssembler()
	var (
		mu            sync.Mutex
		unrecoverable []uint32
		chunksDone    int64
	)
	g := &errgroup.Group{}
	g.SetLimit(c.cfg.Workers)
	for index, st := range states {
		index, st := index, st
		g.Go(func() error {
			return recoverAsError(func() error {
				data, err := st.dec.Decode()
				if err != nil {
					mu.Lock()
					unrecoverable = append(unrecoverable, index)
					mu.Unlock()
					return nil
				}
				if int(st.origLen) > len(data) {
					mu.Lock()
					unrecoverable = append(unrecoverable, index)
					mu.Unlock()
					return nil
				}

				if sealer != nil {
					plain, oerr := sealer.OpenChunk(index, data[:st.origLen])
					if oerr != nil {
						return oerr
					}
					if perr := asm.Put(index, plain, len(plain)); perr != nil {
						return perr
					}
				} else if perr := asm.Put(index, data, int(st.origLen)); perr != nil {
					return perr
				}

				if c.met != nil {
					c.met.ChunksDecoded.Inc()
				}
				mu.Lock()
				chunksDone++
				done := chunksDone
				mu.Unlock()
				c.reportProgress("decode", done, int64(totalChunks))
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(unrecoverable) > 0 {
		sort.Slice(unrecoverable, func(i, j int) bool { return unrecoverable[i] < unrecoverable[j] })
		return nil, &UnrecoverableChunksError{Chunks: unrecoverable}
	}
	if missing := asm.Missing(totalChunks); len(missing) > 0 {
		return nil, &MissingChunksError{Chunks: missing, Total: totalChunks}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	h := sha256.New()
	n, err := asm.WriteTo(io.MultiWriter(out, h))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	if c.met != nil {
		c.met.BytesOut.Add(float64(n))
	}

	return &Result{
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		FileID:  hex.EncodeToString(fileID[:]),
		Bytes:   n,
		Chunks:  totalChunks,
		Packets: int64(scanner.Scanned()),
		Frames:  extract.frames,
	}, nil
}
