package proxyserver

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydraproxy/ingressproxy/internal/bridge"
	"github.com/hydraproxy/ingressproxy/internal/k8s"
	"github.com/hydraproxy/ingressproxy/internal/route"
	"github.com/hydraproxy/ingressproxy/internal/tlsca"
)

type fakeRouteCluster struct {
	id        string
	ingresses []k8s.Ingress
}

func (f *fakeRouteCluster) ID() string { return f.id }
func (f *fakeRouteCluster) ListIngresses(ctx context.Context) ([]k8s.Ingress, error) {
	return f.ingresses, nil
}

type fakeBridgeCluster struct {
	id       string
	pods     []k8s.Pod
	upstream net.Conn // the proxy-facing half; returned to the dispatcher
}

func (f *fakeBridgeCluster) ID() string { return f.id }
func (f *fakeBridgeCluster) ListPods(ctx context.Context) ([]k8s.Pod, error) {
	return f.pods, nil
}
func (f *fakeBridgeCluster) PortForward(ctx context.Context, podName string, secure bool) (io.ReadWriteCloser, error) {
	return f.upstream, nil
}

func buildTestServer(t *testing.T, cluster *fakeRouteCluster, bridgeCluster *fakeBridgeCluster, localAddr string) *Server {
	t.Helper()

	var staticFiles []string
	if localAddr != "" {
		dir := t.TempDir()
		path := filepath.Join(dir, "hosts")
		require.NoError(t, os.WriteFile(path, []byte("local.example.com="+localAddr+"\n"), 0o644))
		staticFiles = []string{path}
	}

	var clusters []route.ClusterClient
	if cluster != nil {
		clusters = append(clusters, cluster)
	}

	table, err := route.Build(context.Background(), nil, clusters, staticFiles)
	require.NoError(t, err)

	clusterMap := map[string]bridge.ClusterClient{}
	if bridgeCluster != nil {
		clusterMap[bridgeCluster.id] = bridgeCluster
	}

	return &Server{
		Routes:      table,
		Clusters:    clusterMap,
		PeekTimeout: 2 * time.Second,
	}
}

func TestHandlePlainRoutesToLocalAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	}()

	s := buildTestServer(t, nil, nil, ln.Addr().String())

	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	req := "GET / HTTP/1.1\r\nHost: local.example.com\r\n\r\n"
	_, err = clientSide.Write([]byte(req))
	require.NoError(t, err)

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := bufio.NewReader(clientSide).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, resp, "200 OK")

	select {
	case got := <-received:
		assert.Contains(t, got, "Host: local.example.com")
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received request")
	}
}

func TestHandlePlainRoutesToCluster(t *testing.T) {
	proxyFacing, podFacing := net.Pipe()
	defer podFacing.Close()

	bridgeCluster := &fakeBridgeCluster{id: "cluster-a", pods: []k8s.Pod{{Name: "pod-1"}}, upstream: proxyFacing}
	routeCluster := &fakeRouteCluster{id: "cluster-a", ingresses: []k8s.Ingress{
		{Hosts: []string{"app.example.com"}},
	}}

	s := buildTestServer(t, routeCluster, bridgeCluster, "")

	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	go func() {
		_, _ = clientSide.Write([]byte("GET / HTTP/1.1\r\nHost: app.example.com\r\n\r\n"))
	}()

	buf := make([]byte, 4096)
	podFacing.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := podFacing.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "Host: app.example.com")
}

func TestHandlePlainFallsBackToSoleCluster(t *testing.T) {
	proxyFacing, podFacing := net.Pipe()
	defer podFacing.Close()

	bridgeCluster := &fakeBridgeCluster{id: "cluster-a", pods: []k8s.Pod{{Name: "pod-1"}}, upstream: proxyFacing}
	routeCluster := &fakeRouteCluster{id: "cluster-a", ingresses: []k8s.Ingress{
		{Hosts: []string{"app.example.com"}},
	}}

	s := buildTestServer(t, routeCluster, bridgeCluster, "")

	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	// neither the ingress table nor the local-client table has an entry for
	// this host, but exactly one cluster is configured, so the dispatcher
	// must fall back to it rather than failing the connection.
	go func() {
		_, _ = clientSide.Write([]byte("GET / HTTP/1.1\r\nHost: unmapped.example.com\r\n\r\n"))
	}()

	buf := make([]byte, 4096)
	podFacing.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := podFacing.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "Host: unmapped.example.com")
}

func TestHandlePlainLocalAddressBeatsSoleClusterFallback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	}()

	// a single cluster is configured alongside the local-client entry;
	// a request for the local-client host must not be hijacked by the
	// sole-cluster fallback.
	routeCluster := &fakeRouteCluster{id: "cluster-a", ingresses: []k8s.Ingress{
		{Hosts: []string{"app.example.com"}},
	}}
	bridgeCluster := &fakeBridgeCluster{id: "cluster-a"}
	s := buildTestServer(t, routeCluster, bridgeCluster, ln.Addr().String())

	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	req := "GET / HTTP/1.1\r\nHost: local.example.com\r\n\r\n"
	_, err = clientSide.Write([]byte(req))
	require.NoError(t, err)

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := bufio.NewReader(clientSide).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, resp, "200 OK")

	select {
	case got := <-received:
		assert.Contains(t, got, "Host: local.example.com")
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received request")
	}
}

func TestHandlePlainNoRouteCloses(t *testing.T) {
	s := buildTestServer(t, nil, nil, "")

	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	_, err := clientSide.Write([]byte("GET / HTTP/1.1\r\nHost: unknown.example.com\r\n\r\n"))
	require.NoError(t, err)

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err = clientSide.Read(buf)
	assert.Error(t, err, "connection should be closed with no route")
}

func generateLeafCA(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestHandleTLSRoutesToLocalAddress(t *testing.T) {
	certPEM, keyPEM := generateLeafCA(t)
	ca, err := tlsca.LoadCA(certPEM, keyPEM, tlsca.AlgorithmECDSAP256)
	require.NoError(t, err)
	provider := tlsca.NewModeB(ca)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	s := buildTestServer(t, nil, nil, ln.Addr().String())
	s.TLSProvider = provider

	// buildTestServer's static file maps "local.example.com"; use that as
	// the TLS SNI too so the dispatcher falls through to the local-client
	// branch of the TLS path.
	clientSide, serverSide := net.Pipe()
	go s.handle(context.Background(), serverSide)

	clientTLS := tls.Client(clientSide, &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         "local.example.com",
	})

	go func() {
		require.NoError(t, clientTLS.Handshake())
		_, _ = clientTLS.Write([]byte("hello"))
	}()

	select {
	case got := <-received:
		assert.Equal(t, "hello", got)
	case <-time.After(3 * time.Second):
		t.Fatal("local upstream never received the decrypted payload")
	}
}
