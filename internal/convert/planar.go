package convert

// Fixed-point YUV to RGB (analog YUV, not YCbCr video range), 14 bits.
const (
	yuvShift = 14
	yuvRound = 1 << (yuvShift - 1)

	coefUB = 33292  // 2.032
	coefUG = -6472  // -0.395
	coefVG = -9519  // -0.581
	coefVR = 18678  // 1.140
)

// planarToRGB converts 4:2:0 planes. u and v are (w/2)x(h/2).
func planarToRGB(img *RGBImage, y, u, v []byte) {
	w, h := img.Width, img.Height
	cw := w / 2

	urow := make([]uint8, w)
	vrow := make([]uint8, w)
	for row := 0; row < h; row += 2 {
		crow := row / 2
		upsampleRow(urow, u[crow*cw:(crow+1)*cw])
		upsampleRow(vrow, v[crow*cw:(crow+1)*cw])

		// Chroma rows are duplicated, not interpolated.
		for _, r := range [2]int{row, row + 1} {
			ypix := y[r*w : (r+1)*w]
			out := img.Pix[r*w*3 : (r+1)*w*3]
			for x := 0; x < w; x++ {
				yy := int(ypix[x])
				du := int(urow[x]) - 128
				dv := int(vrow[x]) - 128
				out[3*x] = clamp8(yy + (dv*coefVR+yuvRound)>>yuvShift)
				out[3*x+1] = clamp8(yy + (du*coefUG+dv*coefVG+yuvRound)>>yuvShift)
				out[3*x+2] = clamp8(yy + (du*coefUB+yuvRound)>>yuvShift)
			}
		}
	}
}

// upsampleRow doubles src into dst with linear interpolation at half-pixel
// centers. Weights are 1/4 and 3/4 in 11-bit fixed point, which reduces to
// (a + 3b + 2) >> 2. Edge samples are replicated.
func upsampleRow(dst, src []uint8) {
	n := len(src)
	for k := 0; k < n; k++ {
		cur := int(src[k])
		prev, next := cur, cur
		if k > 0 {
			prev = int(src[k-1])
		}
		if k < n-1 {
			next = int(src[k+1])
		}
		if k == 0 {
			dst[0] = uint8(cur)
		} else {
			dst[2*k] = uint8((prev + 3*cur + 2) >> 2)
		}
		if k == n-1 {
			dst[2*k+1] = uint8(cur)
		} else {
			dst[2*k+1] = uint8((3*cur + next + 2) >> 2)
		}
	}
}
