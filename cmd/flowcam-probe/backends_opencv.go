//go:build opencv

package main

import _ "github.com/abihf/flowimg/capture/opencv"
