package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"minidfs/pkg/types"
)

var byteOrder = binary.BigEndian

// maxEntries is the largest block or node count a response header can carry.
var maxEntries uint64 = math.MaxUint32

// Readers never preallocate more entries than this from a peer-supplied count.
const maxPrealloc = 1024

type wireRequest struct {
	Op   int32
	Name [NameFieldSize]byte
	Size uint64
	_    [4]byte
}

type wireHeartbeat struct {
	DatanodeID int32
	ListenPort int32
}

type wireFileHeader struct {
	Name       [NameFieldSize]byte
	Size       uint64
	BlockCount uint32
}

type wireBlock struct {
	Index   uint32
	NodeID  int32
	Address [AddressFieldSize]byte
	Port    int32
	Owner   [NameFieldSize]byte
}

type wireNode struct {
	NodeID  int32
	Address [AddressFieldSize]byte
	Port    int32
}

// RequestSize is the size of an encoded request record.
var RequestSize = binary.Size(wireRequest{})

// HeartbeatSize is the size of an encoded heartbeat record.
var HeartbeatSize = binary.Size(wireHeartbeat{})

func WriteRequest(w io.Writer, req Request) error {
	var rec wireRequest
	rec.Op = int32(req.Op)
	rec.Size = req.FileSize
	if err := putString(rec.Name[:], req.FileName); err != nil {
		return fmt.Errorf("file name: %w", err)
	}
	return binary.Write(w, byteOrder, &rec)
}

func ReadRequest(r io.Reader) (Request, error) {
	var rec wireRequest
	if err := read(r, &rec); err != nil {
		return Request{}, err
	}
	return Request{
		Op:       OpCode(rec.Op),
		FileName: getString(rec.Name[:]),
		FileSize: rec.Size,
	}, nil
}

func WriteHeartbeat(w io.Writer, hb Heartbeat) error {
	return binary.Write(w, byteOrder, wireHeartbeat(hb))
}

func ReadHeartbeat(r io.Reader) (Heartbeat, error) {
	var rec wireHeartbeat
	if err := read(r, &rec); err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat(rec), nil
}

// WriteStatus writes a bare status frame with no payload.
func WriteStatus(w io.Writer, status Status) error {
	_, err := w.Write([]byte{byte(status)})
	return err
}

// WriteFileResponse writes an OK status followed by the file header and one
// block entry per block.
func WriteFileResponse(w io.Writer, file types.FileRecord) error {
	if uint64(len(file.Blocks)) > maxEntries {
		return fmt.Errorf("%d blocks: %w", len(file.Blocks), ErrFieldTooLong)
	}

	bw := bufio.NewWriter(w)
	if err := WriteStatus(bw, StatusOK); err != nil {
		return err
	}

	var hdr wireFileHeader
	if err := putString(hdr.Name[:], file.Name); err != nil {
		return fmt.Errorf("file name: %w", err)
	}
	hdr.Size = file.Size
	hdr.BlockCount = uint32(len(file.Blocks))
	if err := binary.Write(bw, byteOrder, &hdr); err != nil {
		return err
	}

	for _, b := range file.Blocks {
		rec := wireBlock{
			Index:  uint32(b.Index),
			NodeID: int32(b.NodeID),
			Port:   b.Port,
		}
		if err := putString(rec.Address[:], b.Address); err != nil {
			return fmt.Errorf("block %d address: %w", b.Index, err)
		}
		if err := putString(rec.Owner[:], b.Owner); err != nil {
			return fmt.Errorf("block %d owner: %w", b.Index, err)
		}
		if err := binary.Write(bw, byteOrder, &rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSystemResponse writes an OK status followed by the live count and one
// node entry per registered datanode.
func WriteSystemResponse(w io.Writer, snap types.ClusterSnapshot) error {
	if uint64(len(snap.Nodes)) > maxEntries {
		return fmt.Errorf("%d nodes: %w", len(snap.Nodes), ErrFieldTooLong)
	}

	bw := bufio.NewWriter(w)
	if err := WriteStatus(bw, StatusOK); err != nil {
		return err
	}
	if err := binary.Write(bw, byteOrder, uint32(len(snap.Nodes))); err != nil {
		return err
	}
	for _, n := range snap.Nodes {
		rec := wireNode{NodeID: int32(n.ID), Port: n.Port}
		if err := putString(rec.Address[:], n.Address); err != nil {
			return fmt.Errorf("node %d address: %w", n.ID, err)
		}
		if err := binary.Write(bw, byteOrder, &rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFileResponse reads a file response. A non-OK status is returned as a
// *StatusError.
func ReadFileResponse(r io.Reader) (types.FileRecord, error) {
	if err := readStatus(r); err != nil {
		return types.FileRecord{}, err
	}

	var hdr wireFileHeader
	if err := read(r, &hdr); err != nil {
		return types.FileRecord{}, err
	}

	file := types.FileRecord{
		Name:       getString(hdr.Name[:]),
		Size:       hdr.Size,
		BlockCount: int(hdr.BlockCount),
		Blocks:     make([]types.BlockRecord, 0, min(hdr.BlockCount, maxPrealloc)),
	}
	for i := uint32(0); i < hdr.BlockCount; i++ {
		var rec wireBlock
		if err := read(r, &rec); err != nil {
			return types.FileRecord{}, fmt.Errorf("block %d: %w", i, err)
		}
		file.Blocks = append(file.Blocks, types.BlockRecord{
			Owner:   getString(rec.Owner[:]),
			Index:   int(rec.Index),
			NodeID:  types.NodeID(rec.NodeID),
			Address: getString(rec.Address[:]),
			Port:    rec.Port,
		})
	}
	return file, nil
}

func ReadSystemResponse(r io.Reader) (types.ClusterSnapshot, error) {
	if err := readStatus(r); err != nil {
		return types.ClusterSnapshot{}, err
	}

	var count uint32
	if err := read(r, &count); err != nil {
		return types.ClusterSnapshot{}, err
	}

	snap := types.ClusterSnapshot{
		LiveCount: int(count),
		Nodes:     make([]types.NodeRecord, 0, min(count, maxPrealloc)),
	}
	for i := uint32(0); i < count; i++ {
		var rec wireNode
		if err := read(r, &rec); err != nil {
			return types.ClusterSnapshot{}, fmt.Errorf("node %d: %w", i, err)
		}
		snap.Nodes = append(snap.Nodes, types.NodeRecord{
			ID:      types.NodeID(rec.NodeID),
			Address: getString(rec.Address[:]),
			Port:    rec.Port,
		})
	}
	return snap, nil
}

func readStatus(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// the namenode closed without answering
			return io.EOF
		}
		return err
	}
	if status := Status(buf[0]); status != StatusOK {
		return &StatusError{Status: status}
	}
	return nil
}

// read decodes one fixed-size record, reporting short reads as malformed.
func read(r io.Reader, data interface{}) error {
	err := binary.Read(r, byteOrder, data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: truncated: %v", ErrMalformedRecord, err)
	default:
		return err
	}
}

func putString(dst []byte, s string) error {
	// keep one byte for the NUL terminator
	if len(s) >= len(dst) {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFieldTooLong, len(s), len(dst)-1)
	}
	copy(dst, s)
	return nil
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}
