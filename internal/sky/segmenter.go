// Package sky segments sky pixels from photos. The filter chain is a
// deterministic, pure function of the pixel data; its constants are fixed
// because parity with the reference chain is the contract — the dome grid
// downstream interprets mask values, and retuning here silently shifts the
// whole obstruction map.
package sky

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Filter chain constants.
const (
	bilateralDiameter   = 9
	bilateralSigmaColor = 75
	bilateralSigmaSpace = 75
	sobelKernelSize     = 3
	edgeThreshold       = 20
	edgeKernelSize      = 3
	adaptiveBlockSize   = 21
	adaptiveOffset      = 2
	openingKernelSize   = 35
)

// Contour acceptance predicate constants. Sky regions are large, sit in
// the top portion of the frame, are wider than tall, and are close to
// convex.
const (
	minSkyArea     = 8000.0
	skyHeightRatio = 0.2
	minAspectRatio = 1.0
	minSmoothness  = 0.5
)

var maskWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Segmenter turns photos into binary sky masks.
type Segmenter struct{}

// NewSegmenter returns a Segmenter.
func NewSegmenter() *Segmenter { return &Segmenter{} }

// GenerateMask reads one photo, segments it, and writes the sky mask to
// maskPath. A photo that cannot be decoded is a per-photo failure, not a
// batch failure.
func (s *Segmenter) GenerateMask(photoPath, maskPath string) error {
	img := gocv.IMRead(photoPath, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("load photo %s: not a decodable image", photoPath)
	}
	defer img.Close()

	mask := Segment(img)
	defer mask.Close()

	if ok := gocv.IMWrite(maskPath, mask); !ok {
		return fmt.Errorf("write mask %s", maskPath)
	}
	return nil
}

// Segment computes the binary sky mask for one color image: sky pixels are
// 255, everything else 0. The caller owns the returned Mat.
func Segment(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	// Edge map marks sky boundaries and texture; those pixels are
	// excluded from sky candidacy.
	edges := detectEdges(gray)
	defer edges.Close()
	edgesInv := gocv.NewMat()
	defer edgesInv.Close()
	gocv.BitwiseNot(edges, &edgesInv)

	// Locally-bright candidate regions.
	colorMask := gocv.NewMat()
	defer colorMask.Close()
	gocv.AdaptiveThreshold(gray, &colorMask, 255, gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinary, adaptiveBlockSize, adaptiveOffset)

	combined := gocv.NewMat()
	defer combined.Close()
	gocv.BitwiseAnd(colorMask, edgesInv, &combined)

	filtered := filterSkyContours(combined, img.Rows())
	defer filtered.Close()

	// Opening removes residual speckle and smooths the accepted region's
	// boundary.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(openingKernelSize, openingKernelSize))
	defer kernel.Close()
	mask := gocv.NewMat()
	gocv.MorphologyEx(filtered, &mask, gocv.MorphOpen, kernel)
	return mask
}

// detectEdges computes a binary edge map from a grayscale image: bilateral
// smoothing, Sobel gradients, magnitude threshold, then a dilate/erode pair
// to close small gaps.
func detectEdges(gray gocv.Mat) gocv.Mat {
	bilateral := gocv.NewMat()
	defer bilateral.Close()
	gocv.BilateralFilter(gray, &bilateral, bilateralDiameter, bilateralSigmaColor, bilateralSigmaSpace)

	sobelX := gocv.NewMat()
	defer sobelX.Close()
	gocv.Sobel(bilateral, &sobelX, gocv.MatTypeCV64F, 1, 0, sobelKernelSize, 1, 0, gocv.BorderDefault)
	sobelY := gocv.NewMat()
	defer sobelY.Close()
	gocv.Sobel(bilateral, &sobelY, gocv.MatTypeCV64F, 0, 1, sobelKernelSize, 1, 0, gocv.BorderDefault)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(sobelX, sobelY, &magnitude)
	magnitude8 := gocv.NewMat()
	defer magnitude8.Close()
	// ConvertTo saturates magnitudes above 255 instead of wrapping them
	// modulo 256, so the strongest gradients always classify as edges.
	magnitude.ConvertTo(&magnitude8, gocv.MatTypeCV8U)

	edges := gocv.NewMat()
	gocv.Threshold(magnitude8, &edges, edgeThreshold, 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(edgeKernelSize, edgeKernelSize))
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(edges, &dilated, kernel)
	gocv.Erode(dilated, &edges, kernel)
	return edges
}

// filterSkyContours keeps only external contours that pass the joint sky
// acceptance predicate and draws them filled into a fresh mask.
func filterSkyContours(mask gocv.Mat, imageHeight int) gocv.Mat {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	skyMask := gocv.NewMatWithSize(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	for i := 0; i < contours.Size(); i++ {
		if acceptContour(contours.At(i), imageHeight) {
			gocv.DrawContours(&skyMask, contours, i, maskWhite, -1)
		}
	}
	return skyMask
}

// acceptContour applies the four joint conditions of the sky predicate:
// minimum area, bounding box confined to the top of the frame, wider than
// tall, and smoothness (area over convex hull area) above threshold. All
// four must hold.
func acceptContour(contour gocv.PointVector, imageHeight int) bool {
	area := gocv.ContourArea(contour)
	if area <= minSkyArea {
		return false
	}

	rect := gocv.BoundingRect(contour)
	if float64(rect.Min.Y) >= float64(imageHeight)*skyHeightRatio {
		return false
	}
	aspectRatio := float64(rect.Dx()) / float64(rect.Dy())
	if aspectRatio <= minAspectRatio {
		return false
	}

	return contourSmoothness(contour, area) > minSmoothness
}

// contourSmoothness is the contour area divided by its convex hull area.
// A degenerate hull with zero area counts as maximally smooth.
func contourSmoothness(contour gocv.PointVector, area float64) float64 {
	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(contour, &hull, false, true)

	hullPoints := gocv.NewPointVectorFromMat(hull)
	defer hullPoints.Close()
	hullArea := gocv.ContourArea(hullPoints)
	if hullArea == 0 {
		return 1
	}
	return area / hullArea
}
