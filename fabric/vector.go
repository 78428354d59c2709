package fabric

import "math"

// Vector2i is an integer pair, used for sizes, boundaries and offsets.
type Vector2i struct {
	X, Y int32
}

// Vector4i holds per-edge pixel counts: left, bottom, right, top.
type Vector4i struct {
	X, Y, Z, W int32
}

// Vector3 is a position or direction in model or wall space.
type Vector3 struct {
	X, Y, Z float32
}

func (v Vector3) Add(rhs Vector3) Vector3 { return Vector3{v.X + rhs.X, v.Y + rhs.Y, v.Z + rhs.Z} }
func (v Vector3) Sub(rhs Vector3) Vector3 { return Vector3{v.X - rhs.X, v.Y - rhs.Y, v.Z - rhs.Z} }
func (v Vector3) Scale(f float32) Vector3 { return Vector3{v.X * f, v.Y * f, v.Z * f} }
func (v Vector3) Dot(rhs Vector3) float32 { return v.X*rhs.X + v.Y*rhs.Y + v.Z*rhs.Z }

func (v Vector3) Cross(rhs Vector3) Vector3 {
	return Vector3{
		v.Y*rhs.Z - v.Z*rhs.Y,
		v.Z*rhs.X - v.X*rhs.Z,
		v.X*rhs.Y - v.Y*rhs.X,
	}
}

func (v Vector3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Matrix4 is a column-major 4x4 transform.
type Matrix4 [16]float32

// Identity4 is the identity transform.
var Identity4 = Matrix4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// TransformPoint applies m to the point p (w = 1).
func (m Matrix4) TransformPoint(p Vector3) Vector3 {
	return Vector3{
		m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}

// Mul returns m * rhs.
func (m Matrix4) Mul(rhs Matrix4) Matrix4 {
	var out Matrix4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * rhs[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// InverseRigid inverts a rotation plus translation transform.
func (m Matrix4) InverseRigid() Matrix4 {
	out := Identity4
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[col*4+row] = m[row*4+col]
		}
	}
	t := Vector3{m[12], m[13], m[14]}
	out[12] = -(out[0]*t.X + out[4]*t.Y + out[8]*t.Z)
	out[13] = -(out[1]*t.X + out[5]*t.Y + out[9]*t.Z)
	out[14] = -(out[2]*t.X + out[6]*t.Y + out[10]*t.Z)
	return out
}
