package service

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// Captcha produces elementary arithmetic problems easy enough for mental
// math: two or three small operands, addition, subtraction and
// multiplication only.
type Captcha struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCaptcha() *Captcha {
	return &Captcha{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func newCaptchaWithSeed(seed int64) *Captcha {
	return &Captcha{rnd: rand.New(rand.NewSource(seed))}
}

// Generate returns a question and its exact answer rendered as a string
// for exact-match comparison.
func (c *Captcha) Generate() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var question string
	var answer int

	switch c.rnd.Intn(4) {
	case 0:
		a := 10 + c.rnd.Intn(90)
		b := 10 + c.rnd.Intn(90)
		question = fmt.Sprintf("%d + %d = ?", a, b)
		answer = a + b
	case 1:
		a := 50 + c.rnd.Intn(50)
		b := 10 + c.rnd.Intn(40)
		question = fmt.Sprintf("%d - %d = ?", a, b)
		answer = a - b
	case 2:
		a := 2 + c.rnd.Intn(11)
		b := 2 + c.rnd.Intn(11)
		question = fmt.Sprintf("%d × %d = ?", a, b)
		answer = a * b
	case 3:
		a := 10 + c.rnd.Intn(40)
		b := 10 + c.rnd.Intn(40)
		d := 2 + c.rnd.Intn(8)
		question = fmt.Sprintf("%d + %d - %d = ?", a, b, d)
		answer = a + b - d
	}

	return question, strconv.Itoa(answer)
}
