// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resume_analyser"

// コールバックの結果ラベル
const (
	CallbackSuccess = "success"
	CallbackDenied  = "denied" // プロバイダー側でユーザーが拒否した
	CallbackError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn()
	RecordCallback(result string)
	RecordSignOut()
	RecordStatus(authenticated bool)
	RecordSessionsPurged(count int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordResumeUpload(sizeBytes int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          prometheus.Counter
	callback        *prometheus.CounterVec
	signOut         prometheus.Counter
	status          *prometheus.CounterVec
	sessionsPurged  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	resumeUploads   prometheus.Counter
	resumeSizeBytes prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_signin_total",
			Help:      "サインイン開始の合計数",
		}),
		callback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_callback_total",
			Help:      "OAuthコールバックの結果別の合計数",
		}, []string{"result"}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_signout_total",
			Help:      "サインアウトの合計数",
		}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_status_total",
			Help:      "認証状態確認の結果別の合計数",
		}, []string{"authenticated"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "期限切れで削除されたセッションの合計数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}),
		resumeUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resume_uploads_total",
			Help:      "アップロードされた履歴書の合計数",
		}),
		resumeSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resume_upload_size_bytes",
			Help:      "アップロードされた履歴書のサイズ（バイト）",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 6),
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.callback,
		c.signOut,
		c.status,
		c.sessionsPurged,
		c.httpRequests,
		c.requestLatency,
		c.resumeUploads,
		c.resumeSizeBytes,
	)

	return c
}

// RecordSignIn はサインイン開始を記録する。
func (c *Collector) RecordSignIn() {
	c.signIn.Inc()
}

// RecordCallback はコールバックの結果を記録する。
func (c *Collector) RecordCallback(result string) {
	c.callback.WithLabelValues(result).Inc()
}

// RecordSignOut はサインアウトを記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordStatus は認証状態確認の結果を記録する。
func (c *Collector) RecordStatus(authenticated bool) {
	c.status.WithLabelValues(strconv.FormatBool(authenticated)).Inc()
}

// RecordSessionsPurged は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordResumeUpload は履歴書のアップロードを記録する。
func (c *Collector) RecordResumeUpload(sizeBytes int64) {
	c.resumeUploads.Inc()
	c.resumeSizeBytes.Observe(float64(sizeBytes))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordSignIn() {}
func (Nop) RecordCallback(string) {}
func (Nop) RecordSignOut() {}
func (Nop) RecordStatus(bool) {}
func (Nop) RecordSessionsPurged(int64) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordResumeUpload(int64) {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
