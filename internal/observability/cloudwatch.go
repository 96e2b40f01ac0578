package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// RunSummary is the end-of-run figure set pushed to CloudWatch.
type RunSummary struct {
	RunName       string
	Strategy      string
	Quotes        int64
	Trades        int64
	Rejections    int64
	FundingEvents int64
	FundingSkips  int64
	TotalPnL      float64
	Duration      time.Duration
}

// SummaryPublisher pushes a RunSummary as one PutMetricData call.
type SummaryPublisher struct {
	client    CloudWatchAPI
	namespace string
	logger    zerolog.Logger
}

// NewSummaryPublisher builds a publisher from the default AWS credential chain.
func NewSummaryPublisher(ctx context.Context, region, namespace string) (*SummaryPublisher, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSummaryPublisherWithClient(cloudwatch.NewFromConfig(cfg), namespace), nil
}

// NewSummaryPublisherWithClient wraps an existing client.
func NewSummaryPublisherWithClient(client CloudWatchAPI, namespace string) *SummaryPublisher {
	if namespace == "" {
		namespace = "QuoteLedger"
	}
	return &SummaryPublisher{
		client:    client,
		namespace: namespace,
		logger:    NewLogger("cloudwatch"),
	}
}

// Publish sends the summary. Failures are returned, never retried.
func (p *SummaryPublisher) Publish(ctx context.Context, s RunSummary) error {
	data := p.Datums(s)
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	p.logger.Info().
		Str("namespace", p.namespace).
		Int("metrics", len(data)).
		Msg("published run summary")
	return nil
}

// Datums converts a summary to metric data dimensioned by run and strategy.
func (p *SummaryPublisher) Datums(s RunSummary) []cwtypes.MetricDatum {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Run"), Value: aws.String(s.RunName)},
		{Name: aws.String("Strategy"), Value: aws.String(s.Strategy)},
	}
	count := func(name string, v int64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(v)),
		}
	}
	return []cwtypes.MetricDatum{
		count("Quotes", s.Quotes),
		count("Trades", s.Trades),
		count("Rejections", s.Rejections),
		count("FundingEvents", s.FundingEvents),
		count("FundingSkips", s.FundingSkips),
		{
			MetricName: aws.String("TotalPnL"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitNone,
			Value:      aws.Float64(s.TotalPnL),
		},
		{
			MetricName: aws.String("RunDuration"),
			Dimensions: dims,
			Unit:       cwtypes.StandardUnitSeconds,
			Value:      aws.Float64(s.Duration.Seconds()),
		},
	}
}
