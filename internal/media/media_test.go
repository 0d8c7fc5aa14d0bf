package media

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "driver not found",
			err:  errors.New("failed to find the best driver that fits the constraints"),
			want: ErrNoDevice,
		},
		{
			name: "device not found",
			err:  errors.New("microphone: device not found"),
			want: ErrNoDevice,
		},
		{
			name: "permission denied",
			err:  errors.New("open /dev/snd: permission denied"),
			want: ErrPermissionDenied,
		},
		{
			name: "access denied",
			err:  errors.New("Access Denied by system policy"),
			want: ErrPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	err := errors.New("device is busy")
	got := classify(err)
	if errors.Is(got, ErrNoDevice) || errors.Is(got, ErrPermissionDenied) {
		t.Errorf("unrelated error was classified: %v", got)
	}
}
