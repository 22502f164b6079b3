package hgwire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivermark/scmcore/scmerr"
	"github.com/rivermark/scmcore/scmtypes"
)

func hexNode(b byte) string {
	var id scmtypes.HgChangesetId
	id[0] = b
	return id.String()
}

func TestParseGetFilesArgs_RoundTripsWriteGetFilesArgs(t *testing.T) {
	var id1, id2 scmtypes.HgChangesetId
	id1[0] = 1
	id2[0] = 2
	want := []GetFilesRequest{
		{Node: id1, Path: scmtypes.NewPath("a/b.txt")},
		{Node: id2, Path: scmtypes.NewPath("c.txt")},
	}

	var buf strings.Builder
	require.NoError(t, WriteGetFilesArgs(&buf, want))

	got, err := ParseGetFilesArgs(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].Node, got[0].Node)
	assert.True(t, want[0].Path.Equal(got[0].Path))
	assert.Equal(t, want[1].Node, got[1].Node)
	assert.True(t, want[1].Path.Equal(got[1].Path))
}

func TestParseGetFilesArgs_EmptyListIsJustTerminator(t *testing.T) {
	got, err := ParseGetFilesArgs(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseGetFilesArgs_MissingTerminatorIsProtocolError(t *testing.T) {
	line := hexNode(1) + "a/b.txt\n"
	_, err := ParseGetFilesArgs(strings.NewReader(line))
	require.Error(t, err)
	var protoErr *scmerr.Bundle2InvalidError
	assert.ErrorAs(t, err, &protoErr)
}

func TestParseGetFilesArgs_TruncatedNodeIsProtocolError(t *testing.T) {
	_, err := ParseGetFilesArgs(strings.NewReader("deadbeef\n\n"))
	require.Error(t, err)
	var protoErr *scmerr.Bundle2InvalidError
	assert.ErrorAs(t, err, &protoErr)
}

func TestParseGetFilesArgs_InvalidHexIsProtocolError(t *testing.T) {
	bad := strings.Repeat("z", 40) + "path\n\n"
	_, err := ParseGetFilesArgs(strings.NewReader(bad))
	require.Error(t, err)
	var protoErr *scmerr.Bundle2InvalidError
	assert.ErrorAs(t, err, &protoErr)
}
