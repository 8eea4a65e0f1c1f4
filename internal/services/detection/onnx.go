package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
)

// ONNXDetector runs a YOLOv8 export through the OpenCV DNN module.
// A gocv.Net is not safe for concurrent use, so inference is serialized.
type ONNXDetector struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
	nms       float32
}

func NewONNXDetector(modelPath string, inputSize int, nmsThreshold float64) (*ONNXDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("invalid model input size %d", inputSize)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read model %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN target: %w", err)
	}

	return &ONNXDetector{net: net, inputSize: inputSize, nms: float32(nmsThreshold)}, nil
}

func (d *ONNXDetector) Detect(ctx context.Context, frame models.Frame, threshold float64, classIDs []int) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	scaleX := float64(frame.Width) / float64(d.inputSize)
	scaleY := float64(frame.Height) / float64(d.inputSize)
	candidates := decodeYOLOv8(data, dims[1], dims[2], scaleX, scaleY, float32(threshold), classIDs)
	return suppress(candidates, float32(threshold), d.nms, frame.Width, frame.Height), nil
}

func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// decodeYOLOv8 reads a [1, 4+classes, anchors] tensor. For anchor i the row
// k value is data[k*anchors+i]: cx, cy, w, h, then one score per class.
func decodeYOLOv8(data []float32, rows, anchors int, scaleX, scaleY float64, threshold float32, classIDs []int) []models.Detection {
	classes := rows - 4
	var allowed map[int]bool
	if len(classIDs) > 0 {
		allowed = make(map[int]bool, len(classIDs))
		for _, id := range classIDs {
			allowed[id] = true
		}
	}

	var out []models.Detection
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			if allowed != nil && !allowed[c] {
				continue
			}
			if s := data[(4+c)*anchors+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < threshold {
			continue
		}

		cx := float64(data[i]) * scaleX
		cy := float64(data[anchors+i]) * scaleY
		w := float64(data[2*anchors+i]) * scaleX
		h := float64(data[3*anchors+i]) * scaleY
		x1, y1 := int(cx-w/2), int(cy-h/2)
		out = append(out, models.Detection{
			ClassID:    best,
			Confidence: bestScore,
			Box:        image.Rect(x1, y1, x1+int(w), y1+int(h)),
		})
	}
	return out
}

// suppress applies per-class NMS and clips boxes to the frame
func suppress(candidates []models.Detection, scoreThreshold, nmsThreshold float32, width, height int) []models.Detection {
	byClass := map[int][]models.Detection{}
	for _, c := range candidates {
		byClass[c.ClassID] = append(byClass[c.ClassID], c)
	}
	classes := make([]int, 0, len(byClass))
	for id := range byClass {
		classes = append(classes, id)
	}
	sort.Ints(classes)

	bounds := image.Rect(0, 0, width, height)
	var out []models.Detection
	for _, id := range classes {
		group := byClass[id]
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, d := range group {
			boxes[i] = d.Box
			scores[i] = d.Confidence
		}
		for _, idx := range gocv.NMSBoxes(boxes, scores, scoreThreshold, nmsThreshold) {
			d := group[idx]
			d.Box = d.Box.Intersect(bounds)
			if d.Box.Empty() {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}
