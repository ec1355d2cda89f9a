package storage

import "testing"

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{"1700000000_test.png", "1700000000_test.png"},
		{"i contain cool \xfcml\xe4uts.txt", "i_contain_cool_mluts.txt"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"C:\\Users\\me\\photo.JPG", "C_Users_me_photo.JPG"},
		{"  spaced   out  .png", "spaced_out_.png"},
		{"file\x00name.jpg", "filename.jpg"},
		{"..hidden.gif", "hidden.gif"},
		{"con.png", "_con.png"},
		{"???", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SecureFilename(tt.input); got != tt.expected {
			t.Errorf("SecureFilename(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
