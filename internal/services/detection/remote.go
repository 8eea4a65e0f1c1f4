package detection

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
)

// RemoteDetector calls a detection service over gRPC. Requests and responses
// are google.protobuf.Struct messages:
//
//	request:  {image: base64 JPEG, width, height, frame_index, confidence, classes: [ids]}
//	response: {detections: [{class_id, confidence, box: [x1, y1, x2, y2]}]}
type RemoteDetector struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	method  string
	timeout time.Duration
}

// DialRemote connects and verifies the service with the standard health check
func DialRemote(ctx context.Context, url, method string, timeout time.Duration, opts ...grpc.DialOption) (*RemoteDetector, error) {
	log.Info().Str("url", url).Str("method", method).Msg("Initializing AI detection service")

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to detection service: %w", err)
	}

	d := &RemoteDetector{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		method:  method,
		timeout: timeout,
	}
	if err := d.HealthCheck(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Msg("Successfully connected to AI detection service")
	return d, nil
}

func (d *RemoteDetector) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := d.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("detection service is %s", resp.GetStatus())
	}
	return nil
}

func (d *RemoteDetector) Detect(ctx context.Context, frame models.Frame, threshold float64, classIDs []int) ([]models.Detection, error) {
	jpeg, err := helpers.EncodeJPEG(frame, helpers.HighQuality)
	if err != nil {
		return nil, err
	}

	classes := make([]any, len(classIDs))
	for i, id := range classIDs {
		classes[i] = id
	}
	req, err := structpb.NewStruct(map[string]any{
		"image":       jpeg,
		"width":       frame.Width,
		"height":      frame.Height,
		"frame_index": frame.Index,
		"confidence":  threshold,
		"classes":     classes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, d.method, req, resp); err != nil {
		return nil, err
	}
	return parseRemoteResponse(resp)
}

func parseRemoteResponse(resp *structpb.Struct) ([]models.Detection, error) {
	list := resp.GetFields()["detections"].GetListValue()
	if list == nil {
		return nil, nil
	}

	out := make([]models.Detection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		box := fields["box"].GetListValue().GetValues()
		if len(box) != 4 {
			return nil, fmt.Errorf("detection %d: box has %d values", i, len(box))
		}
		out = append(out, models.Detection{
			ClassID:    int(fields["class_id"].GetNumberValue()),
			Confidence: float32(fields["confidence"].GetNumberValue()),
			Box: image.Rect(
				int(box[0].GetNumberValue()), int(box[1].GetNumberValue()),
				int(box[2].GetNumberValue()), int(box[3].GetNumberValue()),
			),
		})
	}
	return out, nil
}

func (d *RemoteDetector) Close() error {
	log.Info().Msg("Shutting down detection service connection")
	return d.conn.Close()
}
