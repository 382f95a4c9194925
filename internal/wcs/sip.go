package wcs

import (
	"fmt"
	"math"
)

// polynomial is one SIP distortion term set: sum of c[p][q] * u^p * v^q for p+q <= order
type polynomial struct {
	order int
	c     [][]float64
}

// parsePolynomial reads <prefix>_ORDER and the <prefix>_p_q coefficients.
// It returns nil when the order card is absent.
func parsePolynomial(d *Descriptor, prefix string) *polynomial {
	order, ok := d.Int(prefix + "_ORDER")
	if !ok || order < 0 {
		return nil
	}

	p := polynomial{order: order, c: make([][]float64, order+1)}
	for i := 0; i <= order; i++ {
		p.c[i] = make([]float64, order+1-i)
		for j := 0; i+j <= order; j++ {
			p.c[i][j], _ = d.Float(fmt.Sprintf("%s_%d_%d", prefix, i, j))
		}
	}

	return &p
}

func (p *polynomial) eval(u, v float64) float64 {
	var sum float64
	for i := 0; i <= p.order; i++ {
		ui := math.Pow(u, float64(i))
		for j := 0; i+j <= p.order; j++ {
			if c := p.c[i][j]; c != 0 {
				sum += c * ui * math.Pow(v, float64(j))
			}
		}
	}
	return sum
}

// grad returns the partial derivatives with respect to u and v
func (p *polynomial) grad(u, v float64) (du, dv float64) {
	for i := 0; i <= p.order; i++ {
		for j := 0; i+j <= p.order; j++ {
			c := p.c[i][j]
			if c == 0 {
				continue
			}
			if i > 0 {
				du += c * float64(i) * math.Pow(u, float64(i-1)) * math.Pow(v, float64(j))
			}
			if j > 0 {
				dv += c * float64(j) * math.Pow(u, float64(i)) * math.Pow(v, float64(j-1))
			}
		}
	}
	return du, dv
}
