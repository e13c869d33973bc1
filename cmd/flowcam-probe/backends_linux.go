package main

import _ "github.com/abihf/flowimg/capture/v4l"
