package convert

// BT.601 video range, 20-bit fixed point.
const (
	itu601Shift = 20
	itu601Round = 1 << (itu601Shift - 1)

	itu601CY  = 1220542
	itu601CUB = 2116026
	itu601CUG = -409993
	itu601CVG = -852492
	itu601CVR = 1673527
)

// yuy2ToRGB converts Y0 U Y1 V macropixels; each pair shares one chroma sample.
func yuy2ToRGB(img *RGBImage, data []byte) {
	pairs := img.Width * img.Height / 2
	for i := 0; i < pairs; i++ {
		src := data[4*i : 4*i+4]
		u := int(src[1]) - 128
		v := int(src[3]) - 128

		ruv := itu601Round + itu601CVR*v
		guv := itu601Round + itu601CVG*v + itu601CUG*u
		buv := itu601Round + itu601CUB*u

		for j, yv := range [2]byte{src[0], src[2]} {
			y := max(0, int(yv)-16) * itu601CY
			o := (2*i + j) * 3
			img.Pix[o] = clamp8((y + ruv) >> itu601Shift)
			img.Pix[o+1] = clamp8((y + guv) >> itu601Shift)
			img.Pix[o+2] = clamp8((y + buv) >> itu601Shift)
		}
	}
}
