package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kmirek/vtape/internal/audit"
	"github.com/kmirek/vtape/internal/chunker"
	"github.com/kmirek/vtape/internal/config"
	"github.com/kmirek/vtape/internal/crypto"
	"github.com/kmirek/vtape/internal/fountain"
	"github.com/kmirek/vtape/internal/frame"
	"github.com/kmirek/vtape/internal/integrity"
	"github.com/kmirek/vtape/internal/packet"
)

// encodeJob carries one chunk through the worker pool: sealed, fountain
// coded and serialized to packets off the main goroutine, then written to
// the painter in submission order.
type encodeJob struct {
	index    uint32
	data     []byte // padded to chunk size
	origLen  int
	packets  []byte
	npackets int
	err      error
	done     chan struct{}
}

// Encode turns the file at inputPath into a video container at
// outputPath. An empty password disables the encryption layer.
func (c *Codec) Encode(ctx context.Context, inputPath, outputPath, password string) (*Result, error) {
	start := time.Now()
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if c.cfg.SymbolsPerChunk()+1 > fountain.MaxK {
		return nil, fmt.Errorf("%w: chunk_size/symbol_size %d exceeds the %d symbol limit",
			config.ErrInvalid, c.cfg.SymbolsPerChunk(), fountain.MaxK)
	}

	inputHash, err := integrity.HashFile(inputPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", inputPath, err)
	}
	size := info.Size()
	totalChunks := chunker.CountChunks(size, c.cfg.ChunkSize)

	fileID := c.mintFileID()

	var sealer *crypto.Sealer
	if password != "" {
		if sealer, err = crypto.NewSealer(password, fileID[:]); err != nil {
			return nil, err
		}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", inputPath, err)
	}
	defer in.Close()

	sink, err := c.newSink(ctx, outputPath)
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{
		"input":   inputPath,
		"output":  outputPath,
		"file_id": hex.EncodeToString(fileID[:]),
		"chunks":  totalChunks,
	})
	log.Info("encode started")

	res, err := c.runEncode(in, sink, fileID, totalChunks, sealer)
	if err != nil {
		sink.Kill()
		c.logAudit(c.encodeEvent(inputPath, outputPath, fileID, size, password != "", false, err, start))
		return nil, err
	}

	res.SHA256 = inputHash
	res.FileID = hex.EncodeToString(fileID[:])
	res.Bytes = size
	res.Chunks = totalChunks
	res.Duration = time.Since(start)
	if c.met != nil {
		c.met.OperationDuration.WithLabelValues("encode").Observe(res.Duration.Seconds())
	}

	log.WithFields(logrus.Fields{
		"frames":   res.Frames,
		"packets":  res.Packets,
		"duration": res.Duration,
	}).Info("encode finished")
	c.logAudit(c.encodeEvent(inputPath, outputPath, fileID, size, password != "", true, nil, start))
	return res, nil
}

// runEncode drives the chunk worker pool and the frame painter, keeping
// packet emission ordered by (chunk, symbol).
func (c *Codec) runEncode(in io.Reader, sink FrameSink, fileID [16]byte, totalChunks uint32, sealer *crypto.Sealer) (*Result, error) {
	enc := fountain.NewEncoder(c.cfg.SymbolSize, c.cfg.RepairOverhead)

	pr, pw := io.Pipe()
	painter := frame.NewPainter(c.cfg)

	type paintResult struct {
		frames int
		err    error
	}
	paintCh := make(chan paintResult, 1)
	go func() {
		frames, perr := painter.Paint(pr, sink)
		// Unblock any writer still pushing packets.
		pr.CloseWithError(perr)
		paintCh <- paintResult{frames: frames, err: perr}
	}()

	pending := make(chan *encodeJob, c.cfg.Workers*2)
	slots := make(chan struct{}, c.cfg.Workers)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(pending)
		scanErr := chunker.Scan(in, c.cfg.ChunkSize, func(rec chunker.Record) error {
			job := &encodeJob{
				index:   rec.Index,
				data:    append([]byte(nil), rec.Data...),
				origLen: rec.OriginalLen,
				done:    make(chan struct{}),
			}
			select {
			case pending <- job:
			case <-stop:
				close(job.done)
				return fmt.Errorf("encode aborted")
			}
			select {
			case slots <- struct{}{}:
			case <-stop:
				close(job.done)
				return fmt.Errorf("encode aborted")
			}
			go func(j *encodeJob) {
				defer func() { <-slots }()
				defer close(j.done)
				j.err = recoverAsError(func() error {
					return c.processChunk(j, enc, fileID, totalChunks, sealer)
				})
			}(job)
			return nil
		})
		if scanErr != nil {
			job := &encodeJob{err: scanErr, done: make(chan struct{})}
			close(job.done)
			select {
			case pending <- job:
			case <-stop:
			}
		}
	}()

	var (
		firstErr   error
		packets    int64
		chunksDone int64
	)
	for job := range pending {
		<-job.done
		if firstErr != nil {
			continue
		}
		if job.err != nil {
			firstErr = job.err
			continue
		}
		if _, err := pw.Write(job.packets); err != nil {
			firstErr = fmt.Errorf("failed to stream packets of chunk %d: %w", job.index, err)
			continue
		}
		packets += int64(job.npackets)
		chunksDone++
		if c.met != nil {
			c.met.ChunksEncoded.Inc()
			c.met.PacketsEmitted.Add(float64(job.npackets))
			c.met.BytesIn.Add(float64(job.origLen))
		}
		c.reportProgress("encode", chunksDone, int64(totalChunks))
	}

	pw.CloseWithError(firstErr)
	paint := <-paintCh
	if firstErr != nil {
		return nil, firstErr
	}
	if paint.err != nil {
		return nil, paint.err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	if c.met != nil {
		c.met.FramesPainted.Add(float64(paint.frames))
	}
	return &Result{Packets: packets, Frames: paint.frames}, nil
}

// processChunk seals, fountain-codes and serializes one chunk.
func (c *Codec) processChunk(job *encodeJob, enc *fountain.Encoder, fileID [16]byte, totalChunks uint32, sealer *crypto.Sealer) error {
	// The fountain operates on the ciphertext when encrypting, on the
	// zero-padded chunk otherwise. ChunkOriginalLen records whichever
	// byte count the decoder must truncate back to.
	payload := job.data
	origLen := job.origLen
	if sealer != nil {
		payload = sealer.SealChunk(job.index, job.data[:job.origLen])
		origLen = len(payload)
	}

	symbols, err := enc.Encode(fileID[:], job.index, payload)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", job.index, err)
	}
	k := enc.SourceSymbols(len(payload))

	buf := make([]byte, 0, len(symbols)*packet.Len(c.cfg.SymbolSize))
	for _, s := range symbols {
		p := packet.Packet{
			Header: packet.Header{
				FileID:           fileID,
				TotalChunks:      totalChunks,
				ChunkIndex:       job.index,
				K:                uint16(k),
				SymbolIndex:      uint16(s.Index),
				Seed:             s.Seed,
				ChunkOriginalLen: uint32(origLen),
				Encrypted:        sealer != nil,
			},
			Payload: s.Data,
		}
		buf = p.AppendMarshal(buf)
	}
	job.packets = buf
	job.npackets = len(symbols)
	return nil
}

func (c *Codec) encodeEvent(inputPath, outputPath string, fileID [16]byte, size int64, encrypted, success bool, err error, start time.Time) audit.Event {
	e := audit.Event{
		EventType: audit.EventEncode,
		Input:     inputPath,
		Output:    outputPath,
		FileID:    hex.EncodeToString(fileID[:]),
		Encrypted: encrypted,
		Bytes:     size,
		Success:   success,
		Duration:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
