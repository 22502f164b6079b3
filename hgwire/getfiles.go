// Package hgwire implements the Mercurial wire-protocol framing the core
// must produce and consume: the getfiles argument list described in
// spec.md §6, plus the protocol error kinds raised when that framing is
// violated. The error values reuse scmerr's Bundle2Invalid/UnconsumedData
// taxonomy (spec.md §7) rather than inventing a parallel one.
package hgwire

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

// hgNodeHexLen is the length of a 40-hex-character Mercurial node id.
const hgNodeHexLen = 40

// GetFilesRequest is one (node, path) pair requested by a getfiles call
// (spec.md §6: "getfiles argument framing on the wire: repeated
// <40-hex-node><path>\n records").
type GetFilesRequest struct {
	Node scmtypes.HgChangesetId
	Path scmtypes.Path
}

// ParseGetFilesArgs reads the repeated <40-hex-node><path>\n records of a
// getfiles argument list, stopping at the blank-line terminator. A final
// record that is truncated before the terminator — EOF without a blank
// line, or a line shorter than the 40-hex-node prefix — is a protocol
// error (spec.md §6: "An incomplete final record is a protocol error").
func ParseGetFilesArgs(r io.Reader) ([]GetFilesRequest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var requests []GetFilesRequest
	sawTerminator := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			sawTerminator = true
			break
		}
		req, err := parseGetFilesLine(line)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, scmerr.Wrap(err, "hgwire: reading getfiles args")
	}
	if !sawTerminator {
		return nil, &scmerr.Bundle2InvalidError{Reason: "getfiles args: missing blank-line terminator"}
	}
	return requests, nil
}

func parseGetFilesLine(line string) (GetFilesRequest, error) {
	if len(line) < hgNodeHexLen {
		return GetFilesRequest{}, &scmerr.Bundle2InvalidError{
			Reason: fmt.Sprintf("getfiles args: incomplete record %q", line),
		}
	}
	node, err := scmtypes.HgChangesetIdFromHex(line[:hgNodeHexLen])
	if err != nil {
		return GetFilesRequest{}, &scmerr.Bundle2InvalidError{Reason: err.Error()}
	}
	path := scmtypes.NewPath(line[hgNodeHexLen:])
	return GetFilesRequest{Node: node, Path: path}, nil
}

// WriteGetFilesArgs frames requests the same way ParseGetFilesArgs expects
// to read them back: one <40-hex-node><path>\n record per request,
// followed by the blank-line terminator.
func WriteGetFilesArgs(w io.Writer, requests []GetFilesRequest) error {
	var b strings.Builder
	for _, req := range requests {
		b.WriteString(req.Node.String())
		b.WriteString(req.Path.String())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
