// curve.go - Baby Jubjub group arithmetic over the BN254 scalar field.
//
// Baby Jubjub is a twisted Edwards curve a*x^2 + y^2 = 1 + d*x^2*y^2 whose
// base field is the BN254 scalar field, so every coordinate produced here is
// directly consumable as a circuit signal. Field arithmetic is delegated to
// gnark-crypto's fr.Element, which is constant time; the scalar multiplication
// ladder on top of it processes a fixed number of bits and selects branches
// with constant-time Select so private scalars never influence timing.

package curve

import (
	"errors"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrPointNotOnCurve is returned when a coordinate pair fails the curve
	// equation.
	ErrPointNotOnCurve = errors.New("curve: point not on curve")
	// ErrPointNotInSubgroup is returned for on-curve points outside the
	// prime-order subgroup (low-order or mixed-order points).
	ErrPointNotInSubgroup = errors.New("curve: point not in prime-order subgroup")
	// ErrInverseOfZero is returned when a group operation would divide by zero.
	ErrInverseOfZero = errors.New("curve: inverse of zero")
)

// Point is an affine Baby Jubjub point. The zero value is NOT a valid point;
// use Identity for the neutral element (0, 1).
type Point struct {
	X, Y fr.Element
}

// params holds the curve constants. They are built once on first use and
// passed around by reference, never mutated afterwards.
type params struct {
	a, d     fr.Element
	order    *big.Int // prime subgroup order L
	g, base8 Point
}

var (
	paramsOnce sync.Once
	curveP     *params
)

func getParams() *params {
	paramsOnce.Do(func() {
		p := &params{}
		p.a.SetUint64(168700)
		p.d.SetUint64(168696)
		p.order, _ = new(big.Int).SetString(
			"2736030358979909402780800718157159386076813972158567259200215660948447373041", 10)
		gx, _ := new(big.Int).SetString(
			"995203441582195749578291179787384436505546430278305826713579947235728471134", 10)
		gy, _ := new(big.Int).SetString(
			"5472060717959818805561601436314318772137091100104008585924551046643952123905", 10)
		p.g.X.SetBigInt(gx)
		p.g.Y.SetBigInt(gy)
		// Base8 = 8*G, the generator used for all keypairs.
		b8 := p.g
		for i := 0; i < 3; i++ {
			b8 = p.mustAdd(b8, b8)
		}
		p.base8 = b8
		curveP = p
	})
	return curveP
}

// Identity returns the neutral element (0, 1).
func Identity() Point {
	var p Point
	p.X.SetZero()
	p.Y.SetOne()
	return p
}

// Generator returns the curve generator G (order 8*L).
func Generator() Point {
	return getParams().g
}

// Base8 returns 8*G, the prime-order base used for keypairs and ECDH.
func Base8() Point {
	return getParams().base8
}

// Order returns the prime subgroup order L as a fresh big.Int.
func Order() *big.Int {
	return new(big.Int).Set(getParams().order)
}

// IsIdentity reports whether p is the neutral element.
func (p Point) IsIdentity() bool {
	return p.X.IsZero() && p.Y.IsOne()
}

// Equal reports coordinate-wise equality.
func (p Point) Equal(q Point) bool {
	return p.X.Equal(&q.X) && p.Y.Equal(&q.Y)
}

// Neg returns (-x, y), the additive inverse of p.
func (p Point) Neg() Point {
	var r Point
	r.X.Neg(&p.X)
	r.Y.Set(&p.Y)
	return r
}

// Add computes p + q with the unified twisted Edwards addition law:
//
//	x3 = (x1*y2 + y1*x2) / (1 + d*x1*x2*y1*y2)
//	y3 = (y1*y2 - a*x1*x2) / (1 - d*x1*x2*y1*y2)
//
// The law is complete on the prime-order subgroup; a zero denominator can only
// arise from points outside it and is reported as ErrInverseOfZero.
func Add(p, q Point) (Point, error) {
	return getParams().add(p, q)
}

func (cp *params) add(p, q Point) (Point, error) {
	var x1x2, y1y2, x1y2, y1x2, prod, dprod fr.Element
	x1x2.Mul(&p.X, &q.X)
	y1y2.Mul(&p.Y, &q.Y)
	x1y2.Mul(&p.X, &q.Y)
	y1x2.Mul(&p.Y, &q.X)
	prod.Mul(&x1x2, &y1y2)
	dprod.Mul(&cp.d, &prod)

	var one, den1, den2 fr.Element
	one.SetOne()
	den1.Add(&one, &dprod)
	den2.Sub(&one, &dprod)
	if den1.IsZero() || den2.IsZero() {
		return Point{}, ErrInverseOfZero
	}

	var num1, num2, ax1x2, r1, r2 fr.Element
	num1.Add(&x1y2, &y1x2)
	ax1x2.Mul(&cp.a, &x1x2)
	num2.Sub(&y1y2, &ax1x2)
	r1.Inverse(&den1)
	r2.Inverse(&den2)

	var out Point
	out.X.Mul(&num1, &r1)
	out.Y.Mul(&num2, &r2)
	return out, nil
}

// mustAdd is add for trusted constant inputs where the law cannot fail.
func (cp *params) mustAdd(p, q Point) Point {
	r, err := cp.add(p, q)
	if err != nil {
		panic(err)
	}
	return r
}

// selectPoint returns p1 if bit == 1, p0 otherwise, in constant time.
func selectPoint(bit int, p0, p1 Point) Point {
	var r Point
	r.X.Select(bit, &p0.X, &p1.X)
	r.Y.Select(bit, &p0.Y, &p1.Y)
	return r
}

// ScalarMul computes k*p with a fixed 254-bit left-to-right double-and-add
// ladder. Both branches are computed at every step and the result chosen with
// a constant-time select, so the schedule is independent of k. Safe for
// private scalars.
func ScalarMul(k *big.Int, p Point) (Point, error) {
	return ScalarMulBits(k, p, fr.Bits)
}

// ScalarMulBits is ScalarMul over an explicit bit width. The witness
// assembler uses 64 bits for amount*G and the full width for blinding*H so
// the off-circuit decomposition matches the in-circuit one.
func ScalarMulBits(k *big.Int, p Point, bits int) (Point, error) {
	if k.Sign() < 0 || k.BitLen() > bits {
		return Point{}, ErrInvalidScalarWidth
	}
	cp := getParams()
	acc := Identity()
	for i := bits - 1; i >= 0; i-- {
		var err error
		acc, err = cp.add(acc, acc)
		if err != nil {
			return Point{}, err
		}
		sum, err := cp.add(acc, p)
		if err != nil {
			return Point{}, err
		}
		acc = selectPoint(int(k.Bit(i)), acc, sum)
	}
	return acc, nil
}

// ErrInvalidScalarWidth is returned when a scalar does not fit the requested
// decomposition width.
var ErrInvalidScalarWidth = errors.New("curve: scalar exceeds decomposition width")

// OnCurve reports whether p satisfies a*x^2 + y^2 = 1 + d*x^2*y^2.
func OnCurve(p Point) bool {
	cp := getParams()
	var x2, y2, ax2, lhs, x2y2, dx2y2, one, rhs fr.Element
	x2.Square(&p.X)
	y2.Square(&p.Y)
	ax2.Mul(&cp.a, &x2)
	lhs.Add(&ax2, &y2)
	x2y2.Mul(&x2, &y2)
	dx2y2.Mul(&cp.d, &x2y2)
	one.SetOne()
	rhs.Add(&one, &dx2y2)
	return lhs.Equal(&rhs)
}

// InSubgroup reports whether p has order dividing L, i.e. L*p == identity.
// Callers should check OnCurve first; the multiplication here is not
// constant time, which is fine because subgroup checks only see public
// points.
func InSubgroup(p Point) bool {
	cp := getParams()
	acc := Identity()
	k := cp.order
	for i := k.BitLen() - 1; i >= 0; i-- {
		var err error
		acc, err = cp.add(acc, acc)
		if err != nil {
			return false
		}
		if k.Bit(i) == 1 {
			acc, err = cp.add(acc, p)
			if err != nil {
				return false
			}
		}
	}
	return acc.IsIdentity()
}

// Validate runs the full point check: on-curve, then in-subgroup. The engine
// refuses to operate on points failing either.
func Validate(p Point) error {
	if !OnCurve(p) {
		return ErrPointNotOnCurve
	}
	if !InSubgroup(p) {
		return ErrPointNotInSubgroup
	}
	return nil
}

// FromBig builds a point from affine big.Int coordinates without validation.
func FromBig(x, y *big.Int) Point {
	var p Point
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p
}

// XBig returns the x-coordinate as a fresh big.Int.
func (p Point) XBig() *big.Int {
	return p.X.BigInt(new(big.Int))
}

// YBig returns the y-coordinate as a fresh big.Int.
func (p Point) YBig() *big.Int {
	return p.Y.BigInt(new(big.Int))
}
