package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/rdf"
)

func TestNewBlobStore(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name             string
		connectionString string
		containerName    string
		wantErr          bool
		errContains      string
	}{
		{
			name:             "empty connection string",
			connectionString: "",
			containerName:    "segments",
			wantErr:          true,
			errContains:      "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "",
			wantErr:          true,
			errContains:      "container name is required",
		},
		{
			name:             "missing account key",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test",
			containerName:    "segments",
			wantErr:          true,
			errContains:      "account name and key are required",
		},
		{
			name:             "shared key",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "segments",
		},
		{
			name:             "development storage",
			connectionString: "UseDevelopmentStorage=true",
			containerName:    "segments",
		},
		{
			name:             "explicit http endpoint",
			connectionString: "AccountName=test;AccountKey=dGVzdA==;BlobEndpoint=http://127.0.0.1:10000/test",
			containerName:    "segments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewBlobStore(tt.connectionString, tt.containerName, logger)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, store)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.containerName, store.Container())
		})
	}
}

func TestBlobStoreServiceURL(t *testing.T) {
	store, err := NewBlobStore("UseDevelopmentStorage=true", "segments", nil)
	require.NoError(t, err)
	assert.Equal(t, devStoreEndpoint, store.serviceURL)

	store, err = NewBlobStore("AccountName=acct;AccountKey=dGVzdA==;EndpointSuffix=core.chinacloudapi.cn", "segments", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.chinacloudapi.cn", store.serviceURL)
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "out/graph_0_1.ttl", want: "out/graph_0_1.ttl"},
		{path: "./out/graph_0_1.ttl", want: "out/graph_0_1.ttl"},
		{path: "/data/out/graph_0_1.ttl", want: "data/out/graph_0_1.ttl"},
		{path: "out//nested/../graph.nt", want: "out/graph.nt"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, BlobName(tt.path))
		})
	}
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString("AccountName=a; AccountKey=k==;;bogus;BlobEndpoint=http://h/a")
	assert.Equal(t, map[string]string{
		"AccountName":  "a",
		"AccountKey":   "k==",
		"BlobEndpoint": "http://h/a",
	}, params)
}

func TestBlobStorePut(t *testing.T) {
	connectionString := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	if connectionString == "" {
		t.Skip("Azure Blob Storage not available - set AZURE_STORAGE_CONNECTION_STRING to run")
	}

	store, err := NewBlobStore(connectionString, "daedalus-test", zap.NewNop())
	require.NoError(t, err)

	writer := NewSegmentWriter(store, nil)
	err = writer.Write(context.Background(), "test/graph_0_1.nt", rdf.FormatNTriples, "", []rdf.Triple{
		rdf.NewTriple(rdf.NewIRI("http://example.org/s"), rdf.NewIRI("http://example.org/p"), rdf.NewLiteral("o", "")),
	})
	require.NoError(t, err)
}
