package interceptor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/derive"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/identity"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/payload"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/signing"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type countingDeriver struct {
	calls atomic.Int32
}

func (d *countingDeriver) DeriveSet(in derive.Inputs) derive.KeySet {
	d.calls.Add(1)
	return derive.SHA256Deriver{}.DeriveSet(in)
}

type sequenceEntropy struct {
	mu  sync.Mutex
	seq int
}

func (e *sequenceEntropy) Nonce() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return fmt.Sprintf("nonce-%d", e.seq), nil
}

func (e *sequenceEntropy) NewID() string { return "generated-id" }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

type recordingInvoker struct {
	calls int
	md    metadata.MD
}

func (r *recordingInvoker) invoke(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
	r.calls++
	r.md, _ = metadata.FromOutgoingContext(ctx)
	return nil
}

type sampleRequest struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testConfig() Config {
	return Config{
		Identity: identity.ClientIdentity{
			UserID:        "user-1",
			Email:         "user@example.com",
			OS:            "linux",
			ClientIP:      "203.0.113.7",
			CountryCode:   "NL",
			ServerVersion: "6.8.0",
		},
		Secrets: identity.SecretMaterial{
			HMACKey:       "hmac-secret",
			EncryptionKey: "encryption-secret",
			APIKey:        "api-secret",
			GlobalKey:     "global-key-3",
		},
		AccessToken:   "access-token",
		RuntimeNumber: "42",
		RuntimeTime:   "1714816200",
		ISR:           []byte(`{"isr":true}`),
		Entropy:       &sequenceEntropy{},
		Now:           func() time.Time { return fixedNow },
	}
}

func expectedKeys(cfg Config) derive.KeySet {
	return derive.SHA256Deriver{}.DeriveSet(cfg.withDefaults().keyInputs())
}

func TestUnaryAttachesEnvelope(t *testing.T) {
	cfg := testConfig()
	icpt := New(cfg)
	rec := &recordingInvoker{}

	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs("x-trace", "t-1"))
	req := sampleRequest{Name: "build", Count: 2}
	if err := icpt.Unary()(ctx, "/runtime.v1.Builder/Build", req, nil, nil, rec.invoke); err != nil {
		t.Fatalf("unary: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("expected invoker called once, got %d", rec.calls)
	}
	md := rec.md

	for _, key := range []string{
		KeyAuthorization, KeyRequestID, KeyTimestamp, KeyNonce, KeyRequestSignature,
		KeyEncryptedAccessToken, KeyEncryptedUserEmail, KeyEncryptedUserID, KeyEncryptedISR,
		KeyRuntimeNumber, KeyRuntimeTime, KeyOS, KeyClientIPAddress, KeyCountryIPCode, KeyOSServerVersion,
	} {
		if len(md.Get(key)) != 1 {
			t.Fatalf("expected one value for %s, got %v", key, md.Get(key))
		}
	}
	if got := md.Get("x-trace"); len(got) != 1 || got[0] != "t-1" {
		t.Fatalf("pre-existing metadata lost: %v", got)
	}
	for _, key := range []string{KeyStreamID, KeyStreamSignature} {
		if len(md.Get(key)) != 0 {
			t.Fatalf("unary call must not carry %s", key)
		}
	}

	checks := map[string]string{
		KeyRequestID:       "generated-id",
		KeyTimestamp:       strconv.FormatInt(fixedNow.UnixMilli(), 10),
		KeyNonce:           "nonce-1",
		KeyRuntimeNumber:   "42",
		KeyRuntimeTime:     "1714816200",
		KeyOS:              "linux",
		KeyClientIPAddress: "203.0.113.7",
		KeyCountryIPCode:   "NL",
		KeyOSServerVersion: "6.8.0",
	}
	for key, want := range checks {
		if got := md.Get(key)[0]; got != want {
			t.Fatalf("%s: want %q, got %q", key, want, got)
		}
	}
}

func TestUnarySignatureAndCiphertextsVerify(t *testing.T) {
	cfg := testConfig()
	rec := &recordingInvoker{}
	req := sampleRequest{Name: "build", Count: 2}
	if err := New(cfg).Unary()(context.Background(), "/svc/Build", req, nil, nil, rec.invoke); err != nil {
		t.Fatalf("unary: %v", err)
	}
	md := rec.md
	keys := expectedKeys(cfg)

	signed := signing.Request{
		Method:      "/svc/Build",
		Timestamp:   fixedNow.UnixMilli(),
		Nonce:       md.Get(KeyNonce)[0],
		Body:        []byte(`{"name":"build","count":2}`),
		AccessToken: "access-token",
	}
	if !(signing.HMACSigner{}).Verify(signed, keys.Signing.Bytes(), md.Get(KeyRequestSignature)[0]) {
		t.Fatalf("request signature does not verify with the derived signing key")
	}

	derivedKey := keys.Encryption.Bytes()
	decrypt := func(key string, k []byte) string {
		t.Helper()
		plain, err := payload.Decrypt(md.Get(key)[0], k)
		if err != nil {
			t.Fatalf("decrypt %s: %v", key, err)
		}
		return plain
	}
	if got := decrypt(KeyEncryptedAccessToken, derivedKey); got != "access-token" {
		t.Fatalf("unexpected access token %q", got)
	}
	if got := decrypt(KeyEncryptedUserEmail, derivedKey); got != "user@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
	if got := decrypt(KeyEncryptedISR, derivedKey); got != `{"isr":true}` {
		t.Fatalf("unexpected isr %q", got)
	}
	if got := decrypt(KeyEncryptedUserID, []byte("encryption-secret")); got != "user-1" {
		t.Fatalf("unexpected user id %q", got)
	}
	if _, err := payload.Decrypt(md.Get(KeyEncryptedUserID)[0], derivedKey); err == nil {
		t.Fatalf("user id must be sealed with the raw encryption secret, not the derived key")
	}
}

func TestUnaryBearerTokenBindsCall(t *testing.T) {
	cfg := testConfig()
	rec := &recordingInvoker{}
	if err := New(cfg).Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke); err != nil {
		t.Fatalf("unary: %v", err)
	}
	auth := rec.md.Get(KeyAuthorization)[0]
	if auth[:len(bearerPrefix)] != bearerPrefix {
		t.Fatalf("expected bearer prefix, got %q", auth)
	}
	claims, hdr, err := token.Parse(auth[len(bearerPrefix):], expectedKeys(cfg).Token.Bytes(),
		jwtAt(fixedNow))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Method != "/svc/Build" || claims.RequestID != "generated-id" || claims.Nonce != "nonce-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Timestamp != fixedNow.UnixMilli() || claims.StreamInit {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if hdr.OS != "linux" || hdr.ServerVersion != "6.8.0" {
		t.Fatalf("unexpected header %+v", hdr)
	}
}

func TestUnaryReusesCallerRequestID(t *testing.T) {
	rec := &recordingInvoker{}
	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs(KeyRequestID, "caller-id"))
	if err := New(testConfig()).Unary()(ctx, "/svc/Build", nil, nil, nil, rec.invoke); err != nil {
		t.Fatalf("unary: %v", err)
	}
	if got := rec.md.Get(KeyRequestID); len(got) != 1 || got[0] != "caller-id" {
		t.Fatalf("expected caller request id, got %v", got)
	}
}

func TestUnaryRequiresAuthenticationBeforeDerivation(t *testing.T) {
	cases := map[string]func(*Config){
		"missing user id":      func(c *Config) { c.Identity.UserID = "" },
		"missing access token": func(c *Config) { c.AccessToken = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			deriver := &countingDeriver{}
			cfg := testConfig()
			cfg.Deriver = deriver
			mutate(&cfg)
			rec := &recordingInvoker{}

			err := New(cfg).Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke)
			if !errors.Is(err, ErrAuthenticationRequired) {
				t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
			}
			if status.Code(err) != codes.Unauthenticated {
				t.Fatalf("expected Unauthenticated status, got %v", status.Code(err))
			}
			if deriver.calls.Load() != 0 {
				t.Fatalf("expected zero derivations, got %d", deriver.calls.Load())
			}
			if rec.calls != 0 {
				t.Fatalf("invoker must not run after a precondition failure")
			}
		})
	}
}

func TestUnaryDerivesFreshKeysPerCall(t *testing.T) {
	deriver := &countingDeriver{}
	cfg := testConfig()
	cfg.Deriver = deriver
	icpt := New(cfg)
	rec := &recordingInvoker{}
	for i := 0; i < 3; i++ {
		if err := icpt.Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke); err != nil {
			t.Fatalf("unary: %v", err)
		}
	}
	if deriver.calls.Load() != 3 {
		t.Fatalf("expected one derivation per call, got %d", deriver.calls.Load())
	}
}

func TestStreamAttachesStreamEnvelope(t *testing.T) {
	cfg := testConfig()
	cfg.Identity.UserID = ""
	var captured metadata.MD
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return nil, nil
	}

	if _, err := New(cfg).Stream()(context.Background(), &grpc.StreamDesc{ServerStreams: true}, nil, "/svc/Watch", streamer); err != nil {
		t.Fatalf("stream: %v", err)
	}
	for _, key := range []string{KeyStreamID, KeyStreamSignature, KeyAuthorization, KeyEncryptedUserID} {
		if len(captured.Get(key)) != 1 {
			t.Fatalf("expected %s on stream metadata", key)
		}
	}
	for _, key := range []string{KeyRequestID, KeyRequestSignature, KeyClientIPAddress, KeyCountryIPCode} {
		if len(captured.Get(key)) != 0 {
			t.Fatalf("stream metadata must not carry %s", key)
		}
	}

	streamID := captured.Get(KeyStreamID)[0]
	keys := expectedKeys(cfg)
	signed := signing.Request{
		Method:      "/svc/Watch",
		Timestamp:   fixedNow.UnixMilli(),
		Nonce:       captured.Get(KeyNonce)[0],
		Body:        []byte("stream:" + streamID),
		AccessToken: "access-token",
	}
	if !(signing.HMACSigner{}).Verify(signed, keys.Signing.Bytes(), captured.Get(KeyStreamSignature)[0]) {
		t.Fatalf("stream signature does not verify over the synthetic stream tag")
	}

	auth := captured.Get(KeyAuthorization)[0]
	claims, _, err := token.Parse(auth[len(bearerPrefix):], keys.Token.Bytes(), jwtAt(fixedNow))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.StreamInit || claims.StreamID != streamID || claims.RequestID != "" {
		t.Fatalf("unexpected stream claims %+v", claims)
	}
}

func TestStreamRequiresAccessToken(t *testing.T) {
	deriver := &countingDeriver{}
	cfg := testConfig()
	cfg.AccessToken = ""
	cfg.Deriver = deriver
	called := false
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		called = true
		return nil, nil
	}
	_, err := New(cfg).Stream()(context.Background(), &grpc.StreamDesc{}, nil, "/svc/Watch", streamer)
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
	if called || deriver.calls.Load() != 0 {
		t.Fatalf("stream must fail before derivation and dispatch")
	}
}

func TestEncryptionFallbackIsObservable(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	cfg := testConfig()
	cfg.Metrics = metrics
	cfg.Encryptor = payload.New(payload.WithRandom(failingReader{}))

	env, err := BuildUnaryEnvelope(cfg, "/svc/Build", nil, nil)
	if err != nil {
		t.Fatalf("fallback must not fail the call: %v", err)
	}
	if len(env.FallbackFields) != 4 {
		t.Fatalf("expected all four fields on the fallback path, got %v", env.FallbackFields)
	}
	if !payload.IsFallback(env.EncryptedAccessToken) {
		t.Fatalf("expected fallback encoding for the access token")
	}
	plain, err := payload.Decrypt(env.EncryptedUserEmail, nil)
	if err != nil || plain != "user@example.com" {
		t.Fatalf("fallback value must stay reversible, got %q err=%v", plain, err)
	}
	if got := testutil.ToFloat64(metrics.EncryptionFallbacks.WithLabelValues(KeyEncryptedUserID)); got != 1 {
		t.Fatalf("expected one user id fallback, got %v", got)
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	again, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("re-registering metrics: %v", err)
	}
	if again.Envelopes != metrics.Envelopes {
		t.Fatalf("expected existing collector to be reused")
	}

	cfg := testConfig()
	cfg.Metrics = metrics
	rec := &recordingInvoker{}
	_ = New(cfg).Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke)

	cfg.AccessToken = ""
	_ = New(cfg).Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke)

	if got := testutil.ToFloat64(metrics.Envelopes.WithLabelValues(KindUnary, OutcomeSigned)); got != 1 {
		t.Fatalf("expected one signed envelope, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Envelopes.WithLabelValues(KindUnary, OutcomeUnauthorized)); got != 1 {
		t.Fatalf("expected one unauthenticated envelope, got %v", got)
	}
}

func TestConcurrentCallsUseDistinctNonces(t *testing.T) {
	cfg := testConfig()
	cfg.Entropy = nil
	icpt := New(cfg)

	const n = 64
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := &recordingInvoker{}
			if err := icpt.Unary()(context.Background(), "/svc/Build", nil, nil, nil, rec.invoke); err != nil {
				t.Errorf("unary: %v", err)
				return
			}
			mu.Lock()
			seen[rec.md.Get(KeyNonce)[0]] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct nonces, got %d", n, len(seen))
	}
}

func TestEncodeBodyIsDeterministicForProto(t *testing.T) {
	msg := wrapperspb.String("payload")
	got, err := encodeBody(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected protobuf encoding of the request")
	}
	if raw, _ := encodeBody([]byte("raw")); string(raw) != "raw" {
		t.Fatalf("expected raw bytes to pass through")
	}
	if _, err := encodeBody(make(chan int)); err == nil {
		t.Fatalf("expected error for an unserializable request")
	}
}

func TestMergeKeepsForeignKeys(t *testing.T) {
	existing := metadata.Pairs("x-custom", "a", KeyOS, "stale")
	env := Envelope{Kind: KindUnary, OS: "linux"}
	merged := env.Merge(existing)
	if got := merged.Get("x-custom"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("foreign key lost: %v", got)
	}
	if got := merged.Get(KeyOS); len(got) != 1 || got[0] != "linux" {
		t.Fatalf("expected envelope value to win, got %v", got)
	}
	if got := existing.Get(KeyOS); got[0] != "stale" {
		t.Fatalf("merge must not mutate the caller's metadata")
	}
}

type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) add(step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

type loggingDeriver struct{ log *stepLog }

func (d loggingDeriver) DeriveSet(in derive.Inputs) derive.KeySet {
	d.log.add("derive")
	return derive.SHA256Deriver{}.DeriveSet(in)
}

type loggingEntropy struct{ log *stepLog }

func (e loggingEntropy) Nonce() (string, error) {
	e.log.add("nonce")
	return "nonce-x", nil
}

func (e loggingEntropy) NewID() string {
	e.log.add("id")
	return "id-x"
}

func TestEnvelopeDerivesKeysBeforeStampingCall(t *testing.T) {
	for _, kind := range []string{KindUnary, KindStream} {
		log := &stepLog{}
		cfg := testConfig()
		cfg.Deriver = loggingDeriver{log: log}
		cfg.Entropy = loggingEntropy{log: log}

		var (
			env Envelope
			err error
		)
		if kind == KindUnary {
			env, err = BuildUnaryEnvelope(cfg, "/svc/Call", []byte("{}"), nil)
		} else {
			env, err = BuildStreamEnvelope(cfg, "/svc/Watch", nil)
		}
		if err != nil {
			t.Fatalf("%s: build: %v", kind, err)
		}
		if env.CallID != "id-x" {
			t.Fatalf("%s: expected generated id, got %s", kind, env.CallID)
		}
		want := []string{"derive", "nonce", "id"}
		if fmt.Sprint(log.steps) != fmt.Sprint(want) {
			t.Fatalf("%s: expected steps %v, got %v", kind, want, log.steps)
		}
	}
}

func TestStreamSignatureCoversGeneratedStreamID(t *testing.T) {
	cfg := testConfig()
	env, err := BuildStreamEnvelope(cfg, "/svc/Watch", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	req := signing.Request{
		Method:      "/svc/Watch",
		Timestamp:   env.Timestamp,
		Nonce:       env.Nonce,
		Body:        []byte("stream:" + env.CallID),
		AccessToken: cfg.AccessToken,
	}
	if !(signing.HMACSigner{}).Verify(req, expectedKeys(cfg).Signing.Bytes(), env.Signature) {
		t.Fatalf("stream signature must cover the stream tag of the generated id")
	}
}
